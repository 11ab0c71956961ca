package storage

import (
	"context"
	"fmt"
	"time"

	"aitrader/internal/market"
)

const (
	insertAnalysisSQL = `INSERT INTO analysis_results (
        analysis_id,
        coin,
        final_action,
        final_confidence,
        risk_level,
        consensus_type,
        whale_override,
        model_tier,
        whale_score,
        volatility_ratio,
        payload,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (analysis_id) DO NOTHING;`

	listAnalysesBetweenSQL = `SELECT
        analysis_id,
        coin,
        final_action,
        final_confidence,
        risk_level,
        consensus_type,
        whale_override,
        model_tier,
        whale_score,
        volatility_ratio,
        payload,
        created_at
    FROM analysis_results
    WHERE coin = $1
      AND created_at >= $2
      AND created_at < $3
    ORDER BY created_at;`
)

// SaveAnalysis stores an arbitration outcome once per analysis id.
func (s *Store) SaveAnalysis(ctx context.Context, rec AnalysisRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload := []byte(rec.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if _, execErr := pool.Exec(ctx, insertAnalysisSQL,
		rec.AnalysisID,
		string(rec.Coin),
		string(rec.FinalAction),
		rec.FinalConfidence,
		string(rec.RiskLevel),
		rec.ConsensusType,
		rec.WhaleOverride,
		rec.ModelTier,
		rec.WhaleScore,
		rec.VolatilityRatio,
		payload,
		rec.CreatedAt,
	); execErr != nil {
		return fmt.Errorf("save analysis: %w", execErr)
	}
	return nil
}

// ListAnalysesBetween lists a coin's analyses in [from, to).
func (s *Store) ListAnalysesBetween(ctx context.Context, coin market.Coin, from, to time.Time) ([]AnalysisRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAnalysesBetweenSQL, string(coin), from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list analyses: %w", queryErr)
	}
	defer rows.Close()

	out := make([]AnalysisRecord, 0)
	for rows.Next() {
		var rec AnalysisRecord
		var coinStr, action, risk string
		if err := rows.Scan(
			&rec.AnalysisID,
			&coinStr,
			&action,
			&rec.FinalConfidence,
			&risk,
			&rec.ConsensusType,
			&rec.WhaleOverride,
			&rec.ModelTier,
			&rec.WhaleScore,
			&rec.VolatilityRatio,
			&rec.Payload,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Coin = market.Coin(coinStr)
		rec.FinalAction = market.Action(action)
		rec.RiskLevel = market.RiskLevel(risk)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
