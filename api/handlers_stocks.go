package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"wheel-screener/database"
	models "wheel-screener/database/models_pkg"
	"wheel-screener/indicators"
	"wheel-screener/jobs"
	"wheel-screener/market"
	"wheel-screener/scoring"
)

// StockDetail is the full view of one stock.
type StockDetail struct {
	Stock          *models.Stock            `json:"stock"`
	Indicators     *indicators.Snapshot     `json:"indicators,omitempty"`
	WheelScore     *models.WheelScoreRecord `json:"wheel_score,omitempty"`
	EntrySignal    *scoring.EntrySignal     `json:"entry_signal,omitempty"`
	Recommendation *scoring.Recommendation  `json:"recommendation,omitempty"`
	Options        int                      `json:"options_available"`
}

func (s *Server) handleListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := s.Stocks.ListStocks()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stocks": stocks,
		"count":  len(stocks),
	})
}

func (s *Server) lookupStock(ticker string) (*models.Stock, error) {
	if ticker == "" {
		return nil, database.NewInvalidParameter("ticker", "is required")
	}
	stock, err := s.Stocks.GetStock(ticker)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, errNotFound("stock", ticker)
	}
	return stock, nil
}

// handleGetStock returns fundamentals, indicators, the latest wheel score, the entry timing
// signal and the buy/hold recommendation of a stock.
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := s.lookupStock(pathTicker(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	detail := StockDetail{Stock: stock}

	rec, err := s.Stocks.GetIndicators(stock.ID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if rec != nil {
		snap, err := rec.Snapshot()
		if err != nil {
			s.log.Warn("⚠️ Indicator record unreadable", zap.String("ticker", stock.Ticker), zap.Error(err))
		} else {
			detail.Indicators = snap
		}
	}

	if detail.WheelScore, err = s.Stocks.LatestWheelScore(stock.ID); err != nil {
		s.respondWithError(w, r, err)
		return
	}

	rows, err := s.Stocks.GetOptions(stock.ID, string(market.Put), s.now())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	detail.Options = len(rows)

	f := stock.Fundamentals()
	entry := scoring.CalculateEntrySignal(f, detail.Indicators, scoring.SummarizePuts(models.Quotes(rows)))
	detail.EntrySignal = &entry
	if detail.Indicators != nil {
		rec := scoring.Recommend(f, detail.Indicators)
		detail.Recommendation = &rec
	}

	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	stock, err := s.lookupStock(pathTicker(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	optionType := ""
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, ok := market.ParseOptionType(raw)
		if !ok {
			s.respondWithError(w, r, database.NewInvalidParameterWithValue("type", "must be PUT or CALL", raw))
			return
		}
		optionType = string(t)
	}

	rows, err := s.Stocks.GetOptions(stock.ID, optionType, s.now())
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker":  stock.Ticker,
		"options": rows,
		"count":   len(rows),
	})
}

func (s *Server) handleScoreHistory(w http.ResponseWriter, r *http.Request) {
	stock, err := s.lookupStock(pathTicker(r))
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	limit := getIntParam(r, "limit", 30, intPtr(1), intPtr(365))
	history, err := s.Stocks.WheelScoreHistory(stock.ID, limit)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticker": stock.Ticker,
		"scores": history,
	})
}

// handleTopScores ranks today's wheel candidates. ?min_grade=B keeps A and B.
func (s *Server) handleTopScores(w http.ResponseWriter, r *http.Request) {
	grade := strings.ToUpper(r.URL.Query().Get("min_grade"))
	switch grade {
	case "", "A", "B", "C", "D", "F":
	default:
		s.respondWithError(w, r, database.NewInvalidParameterWithValue("min_grade", "must be A-D or F", grade))
		return
	}
	limit := getIntParam(r, "limit", 20, intPtr(1), intPtr(200))
	scores, err := s.Stocks.TopWheelScores(grade, limit)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scores": scores,
		"count":  len(scores),
	})
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := s.Stocks.ListWatchlist()
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"watchlist": items,
		"count":     len(items),
	})
}

type watchlistRequest struct {
	Ticker string `json:"ticker"`
	Notes  string `json:"notes"`
}

func (s *Server) handleAddToWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" || len(ticker) > 12 {
		s.respondWithError(w, r, database.NewInvalidParameterWithValue("ticker", "must be 1-12 characters", req.Ticker))
		return
	}

	item, err := s.Stocks.AddToWatchlist(ticker, req.Notes)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	// fetch data for the new ticker right away so it can be screened before the next run
	if s.Refresher != nil {
		go func() {
			if err := s.Refresher.RefreshTicker(s.BaseContext, ticker, jobs.RefreshFull); err != nil {
				s.log.Warn("⚠️ Initial refresh failed", zap.String("ticker", ticker), zap.Error(err))
			}
		}()
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleRemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	ticker := pathTicker(r)
	removed, err := s.Stocks.RemoveFromWatchlist(ticker)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	if !removed {
		s.respondWithError(w, r, errNotFound("watchlist entry", ticker))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
