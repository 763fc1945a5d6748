package health

import (
	"context"
	"sort"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// AssetLister is the subset of the oracle service needed to enumerate configured assets.
type AssetLister interface {
	Assets(ctx context.Context) ([]*types.OracleConfig, error)
}

type AssetStatus struct {
	Asset  string `json:"asset"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type StatusResponse struct {
	S      string         `json:"s"`
	Status string         `json:"status"`
	Errmsg *string        `json:"errmsg,omitempty"`
	Data   []*AssetStatus `json:"data"`
}

type Service struct {
	assets AssetLister
	prices types.PriceReader

	logger  log.Logger
	svcTags metrics.Tags
}

func NewHealthService(assets AssetLister, prices types.PriceReader, logger log.Logger, svcTags metrics.Tags) *Service {
	return &Service{
		assets:  assets,
		prices:  prices,
		logger:  logger,
		svcTags: svcTags,
	}
}

// GetStatus reports ok when every active asset has a fresh, valid aggregate.
func (s *Service) GetStatus(ctx context.Context) (res *StatusResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	configs, err := s.assets.Assets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list assets")
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Asset < configs[j].Asset
	})

	res = &StatusResponse{
		S:      StatusOK,
		Status: StatusOK,
		Data:   make([]*AssetStatus, 0, len(configs)),
	}

	var unhealthy []string
	for _, cfg := range configs {
		if !cfg.Active {
			continue
		}

		status := &AssetStatus{
			Asset:  cfg.Asset,
			Status: StatusOK,
		}

		if _, err := s.prices.GetLatestPrice(ctx, cfg.Asset); err != nil {
			status.Status = StatusError
			status.Error = err.Error()
			unhealthy = append(unhealthy, cfg.Asset)
		}

		res.Data = append(res.Data, status)
	}

	if len(unhealthy) > 0 {
		msg := errors.Errorf("%d assets have no fresh price: %v", len(unhealthy), unhealthy).Error()

		res.S = StatusError
		res.Status = StatusError
		res.Errmsg = &msg

		s.logger.WithField("assets", unhealthy).Debugln("unhealthy assets")
	}

	return res, nil
}
