// Package enrich fetches per-symbol display data from the backend: the
// cached company profile the refresh job maintains, plus a live quote.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/screenerlab/swl/pkg/swl/api"
	"github.com/screenerlab/swl/pkg/swl/types"
)

// NeedMask declares which data is required for a fetch.
type NeedMask uint64

const (
	NeedNone    NeedMask = 0
	NeedPrice   NeedMask = 1 << iota // current price
	NeedChgPct                       // change percent
	NeedProfile                      // cached company profile fields
)

// quoteBits are the needs served by the quote endpoint.
const quoteBits = NeedPrice | NeedChgPct

// ProfileService fetches display data for a symbol.
type ProfileService interface {
	Get(ctx context.Context, sym string, need NeedMask) (types.ProfileData, error)
}

// ProfileQuoter is the slice of the API client the service needs.
type ProfileQuoter interface {
	Profile(ctx context.Context, ticker string) (*api.ProfileDoc, error)
	Quote(ctx context.Context, ticker string) (*api.QuoteResponse, error)
}

// APIService implements ProfileService against the screener backend,
// calling only the endpoints the need mask asks for.
type APIService struct {
	client  ProfileQuoter
	timeout time.Duration
}

func NewAPIService(client ProfileQuoter, timeout time.Duration) *APIService {
	return &APIService{client: client, timeout: timeout}
}

func (s *APIService) Get(ctx context.Context, sym string, need NeedMask) (types.ProfileData, error) {
	var out types.ProfileData
	if sym == "" || need == NeedNone {
		return out, nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if need&NeedProfile != 0 {
		doc, err := s.client.Profile(cctx, sym)
		switch {
		case api.IsNotFound(err):
			// Not cached yet; the quote may still be available.
		case err != nil:
			return out, errors.Wrapf(err, "failed to fetch profile for %s", sym)
		default:
			out.Name = doc.Data.Name
			out.Exchange = doc.Data.Exchange
			out.Industry = doc.Data.Industry
			out.Country = doc.Data.Country
			out.Currency = doc.Data.Currency
			out.WebURL = doc.Data.WebURL
			out.MktCap = doc.Data.MktCap
		}
	}

	if need&quoteBits != 0 {
		q, err := s.client.Quote(cctx, sym)
		if err != nil {
			return out, errors.Wrapf(err, "failed to fetch quote for %s", sym)
		}
		out.Price = q.Data.Current
		out.ChgPct = q.Data.ChangePct
	}
	return out, nil
}

// CachedService decorates a ProfileService with a TTL cache so repeated
// renders within one session reuse responses.
type CachedService struct {
	next  ProfileService
	cache *ttlcache.Cache[string, types.ProfileData]
}

func NewCachedService(next ProfileService, ttl time.Duration, capacity uint64) *CachedService {
	return &CachedService{
		next: next,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, types.ProfileData](ttl),
			ttlcache.WithCapacity[string, types.ProfileData](capacity),
		),
	}
}

func (c *CachedService) Get(ctx context.Context, sym string, need NeedMask) (types.ProfileData, error) {
	if sym == "" {
		return types.ProfileData{}, nil
	}
	key := cacheKey(sym, need)
	if item := c.cache.Get(key); item != nil {
		return item.Value(), nil
	}
	data, err := c.next.Get(ctx, sym, need)
	if err != nil {
		return data, err
	}
	c.cache.Set(key, data, ttlcache.DefaultTTL)
	return data, nil
}

func cacheKey(sym string, need NeedMask) string {
	return fmt.Sprintf("%s|%d", sym, need)
}

// Warm prefetches data for a set of symbols with bounded concurrency, so a
// table render does not pay one round trip per row. Individual failures
// are logged and left for the per-row fetch to surface.
func Warm(ctx context.Context, svc ProfileService, syms []string, need NeedMask, parallel int) {
	if need == NeedNone || len(syms) == 0 {
		return
	}
	if parallel <= 0 {
		parallel = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, sym := range syms {
		sym := sym // per-iteration copy; module builds with a pre-1.22 go directive
		g.Go(func() error {
			if _, err := svc.Get(gctx, sym, need); err != nil {
				log.WithError(err).WithField("sym", sym).Debugln("prefetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
