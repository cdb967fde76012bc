package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"digitlens/internal/flow"
	"digitlens/internal/util"
	"digitlens/pkg/domain"
)

// presignExpiry bounds how long history image links stay valid.
const presignExpiry = 15 * time.Minute

// AnalyzeScan runs one classification through the scan lifecycle. The
// classifier call and a minimum-duration timer run concurrently so the
// analyzing state stays visible at least minAnalyze. When a session is
// active the scan is persisted best-effort: a storage failure is logged and
// never aborts the flow.
func (a *App) AnalyzeScan(ctx context.Context, sess *domain.Session, image []byte, mimeType string) (domain.AnalysisResult, flow.ScanState, error) {
	machine := flow.NewScan()
	if err := machine.Start(); err != nil {
		return domain.AnalysisResult{}, machine.State(), err
	}

	var result domain.AnalysisResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := a.classifier.Classify(gctx, image, mimeType)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	g.Go(func() error {
		select {
		case <-time.After(a.minAnalyze):
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		_ = machine.Fail()
		return domain.AnalysisResult{}, machine.State(), err
	}
	_ = machine.Succeed()

	if sess != nil {
		if err := a.saveScan(ctx, sess.Email, image, mimeType, result); err != nil {
			util.LoggerFromContext(ctx).Warn("failed to save scan", "email", maskEmail(sess.Email), "err", err)
		}
	}
	return result, machine.State(), nil
}

// History returns the user's scans, newest first. Retrieval failure
// degrades to an empty view rather than an error.
func (a *App) History(ctx context.Context, email string) []domain.ScanRecord {
	email = normalizeEmail(email)
	records, err := a.store.ListScansByUser(email)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("failed to load history", "email", maskEmail(email), "err", err)
		return []domain.ScanRecord{}
	}
	if a.objects != nil {
		for i := range records {
			if records[i].StorageKey == "" {
				continue
			}
			url, err := a.objects.PresignGet(ctx, records[i].StorageKey, presignExpiry)
			if err != nil {
				continue
			}
			records[i].ImageURL = url
		}
	}
	return records
}

// HistoryCount reports how many scans a user has stored.
func (a *App) HistoryCount(email string) (int, error) {
	return a.store.CountScansByUser(normalizeEmail(email))
}

func (a *App) saveScan(ctx context.Context, email string, image []byte, mimeType string, result domain.AnalysisResult) error {
	rec := domain.ScanRecord{
		ID:          uuid.NewString(),
		UserEmail:   normalizeEmail(email),
		CreatedAt:   time.Now().UTC(),
		MimeType:    mimeType,
		Digit:       result.Digit,
		Confidence:  result.Confidence,
		Explanation: result.Explanation,
		RawResponse: result.Raw,
	}
	if a.objects != nil {
		key := "scans/" + rec.ID
		if err := a.objects.Put(ctx, key, bytes.NewReader(image), int64(len(image)), mimeType); err != nil {
			return err
		}
		rec.StorageKey = key
	} else {
		rec.ImageData = base64.StdEncoding.EncodeToString(image)
	}
	return a.store.SaveScan(rec)
}
