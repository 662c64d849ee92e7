package imaging

import (
	"context"
	"log/slog"

	"github.com/deusflow/newsharvest/internal/article"
)

// Processor submits a batch of images. *Client implements it.
type Processor interface {
	Process(ctx context.Context, items []Item) (*Response, error)
}

// Store is the part of storage the reconciler writes to.
type Store interface {
	UpdateImage(ctx context.Context, id int64, image string) (int64, error)
	ArticlesByIDs(ctx context.Context, ids []int64) ([]article.Article, error)
}

type Reconciler struct {
	processor Processor // nil turns the stage into a pass-through
	store     Store
	logger    *slog.Logger
}

func NewReconciler(processor Processor, store Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{processor: processor, store: store, logger: logger}
}

// Reconcile re-hosts the images of persisted articles. See ReconcileWithCount.
func (r *Reconciler) Reconcile(ctx context.Context, articles []article.Article) ([]article.Article, error) {
	out, _, err := r.ReconcileWithCount(ctx, articles)
	return out, err
}

// ReconcileWithCount sends every persisted article that has an image to the
// image service and stores the new locations. When at least one image was
// updated the candidates are re-read from storage and returned; otherwise
// articles are returned unchanged. A failed batch request is an error.
func (r *Reconciler) ReconcileWithCount(ctx context.Context, articles []article.Article) ([]article.Article, int, error) {
	if r.processor == nil {
		return articles, 0, nil
	}

	var items []Item
	var ids []int64
	for _, a := range articles {
		if a.Persisted() && a.Image != "" {
			items = append(items, Item{ID: a.ID, Image: a.Image})
			ids = append(ids, a.ID)
		}
	}
	if len(items) == 0 {
		return articles, 0, nil
	}

	resp, err := r.processor.Process(ctx, items)
	if err != nil {
		return nil, 0, err
	}
	r.logger.Debug("Image batch processed",
		"total", resp.Summary.Total, "succeeded", resp.Summary.Succeeded, "failed", resp.Summary.Failed)

	updated := make(map[int64]string)
	for _, res := range resp.Results {
		if !res.Success || res.Data == nil || res.Data.NewImage == "" {
			r.logger.Warn("Image not processed", "id", res.ID, "error", res.Error)
			continue
		}
		n, err := r.store.UpdateImage(ctx, res.ID, res.Data.NewImage)
		if err != nil {
			r.logger.Warn("Failed to store new image", "id", res.ID, "error", err)
			continue
		}
		if n == 0 {
			r.logger.Warn("No article to update with new image", "id", res.ID)
			continue
		}
		updated[res.ID] = res.Data.NewImage
	}

	if len(updated) == 0 {
		return articles, 0, nil
	}

	fresh, err := r.store.ArticlesByIDs(ctx, ids)
	if err != nil {
		r.logger.Warn("Failed to re-read articles, using in-memory copies", "error", err)
		fresh = make([]article.Article, 0, len(ids))
		for _, a := range articles {
			if img, ok := updated[a.ID]; ok {
				fresh = append(fresh, a.WithImage(img))
			} else if a.Persisted() && a.Image != "" {
				fresh = append(fresh, a)
			}
		}
	}
	return fresh, len(updated), nil
}
