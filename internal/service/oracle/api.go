package oracle

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/InjectiveLabs/price-aggregator/internal/service/oracle/types"
)

var ErrUnauthorized = errors.New("invalid api key")

type PriceResponse struct {
	Asset       string    `json:"asset"`
	RoundID     string    `json:"roundId"`
	Price       string    `json:"price"`
	RawPrice    string    `json:"rawPrice"`
	Decimals    int32     `json:"decimals"`
	Confidence  int64     `json:"confidence"`
	SourcesUsed int       `json:"sourcesUsed"`
	SpreadBps   int64     `json:"spreadBps"`
	Timestamp   time.Time `json:"timestamp"`
}

type ObservationResponse struct {
	Source     string    `json:"source"`
	Provider   string    `json:"provider"`
	Price      string    `json:"price"`
	Confidence int64     `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason,omitempty"`
}

type ProbeResponse struct {
	RoundID   string                 `json:"roundId"`
	Asset     string                 `json:"asset"`
	Accepted  []*ObservationResponse `json:"accepted"`
	Rejected  []*ObservationResponse `json:"rejected"`
	Failures  []string               `json:"failures"`
	Aggregate *PriceResponse         `json:"aggregate,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type ConfigureResponse struct {
	Asset   string `json:"asset"`
	Summary string `json:"summary"`
}

type APIService interface {
	Price(ctx context.Context, asset string) (*PriceResponse, error)
	Configure(ctx context.Context, apiKey string, content []byte) (*ConfigureResponse, error)
	Probe(ctx context.Context, apiKey string, content []byte) (*ProbeResponse, error)
}

type apiSvc struct {
	svc    Service
	apiKey string

	logger  log.Logger
	svcTags metrics.Tags
}

// NewAPIService exposes svc to HTTP callers. An empty apiKey disables the mutating endpoints.
func NewAPIService(svc Service, apiKey string) APIService {
	return &apiSvc{
		svc:    svc,
		apiKey: apiKey,
		logger: log.WithField("svc", "oracle_api"),
		svcTags: metrics.Tags{
			"svc": "oracle_api",
		},
	}
}

func (s *apiSvc) Price(ctx context.Context, asset string) (res *PriceResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	agg, err := s.svc.GetLatestPrice(ctx, asset)
	if err != nil {
		return nil, err
	}

	var decimals int32
	if cfg, err := s.lookupConfig(ctx, asset); err == nil {
		decimals = cfg.Decimals
	}

	return toPriceResponse(agg, decimals), nil
}

func (s *apiSvc) Configure(ctx context.Context, apiKey string, content []byte) (res *ConfigureResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.authorize(apiKey); err != nil {
		return nil, err
	}

	cfg, err := ParseAssetConfig(content)
	if err != nil {
		s.logger.WithError(err).Warningln("rejected asset config")
		return nil, err
	}

	if err := s.svc.ConfigureAsset(ctx, cfg); err != nil {
		return nil, err
	}

	return &ConfigureResponse{
		Asset:   cfg.Asset,
		Summary: configSummary(withDefaults(cfg)),
	}, nil
}

func (s *apiSvc) Probe(ctx context.Context, apiKey string, content []byte) (res *ProbeResponse, err error) {
	defer metrics.ReportFuncCallAndTimingWithErr(s.svcTags)(&err)

	if err := s.authorize(apiKey); err != nil {
		return nil, err
	}

	cfg, err := ParseAssetConfig(content)
	if err != nil {
		s.logger.WithError(err).Warningln("rejected probe config")
		return nil, err
	}

	report, roundErr := s.svc.Probe(ctx, cfg)
	if report == nil {
		return nil, roundErr
	}

	res = NewProbeResponse(report, cfg.Decimals)
	if roundErr != nil {
		res.Error = roundErr.Error()
	}

	return res, nil
}

func (s *apiSvc) authorize(apiKey string) error {
	if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.apiKey)) != 1 {
		return ErrUnauthorized
	}

	return nil
}

func (s *apiSvc) lookupConfig(ctx context.Context, asset string) (*types.OracleConfig, error) {
	configs, err := s.svc.Assets(ctx)
	if err != nil {
		return nil, err
	}

	for _, cfg := range configs {
		if cfg.Asset == asset {
			return cfg, nil
		}
	}

	return nil, errors.Errorf("asset %s is not configured", asset)
}

// NewProbeResponse flattens a round report for printing or JSON encoding.
func NewProbeResponse(report *RoundReport, decimals int32) *ProbeResponse {
	res := &ProbeResponse{
		RoundID:  report.RoundID,
		Asset:    report.Asset,
		Accepted: make([]*ObservationResponse, 0, len(report.Accepted)),
		Rejected: make([]*ObservationResponse, 0, len(report.Rejected)),
		Failures: make([]string, 0, len(report.Failures)),
	}

	for _, obs := range report.Accepted {
		res.Accepted = append(res.Accepted, toObservationResponse(obs, decimals, ""))
	}

	for _, rejected := range report.Rejected {
		res.Rejected = append(res.Rejected, toObservationResponse(rejected.Observation, decimals, rejected.Rejection.Error()))
	}

	for _, failure := range report.Failures {
		res.Failures = append(res.Failures, failure.Error())
	}

	if report.Aggregate != nil {
		res.Aggregate = toPriceResponse(report.Aggregate, decimals)
	}

	return res
}

func toPriceResponse(agg *types.AggregatedPrice, decimals int32) *PriceResponse {
	return &PriceResponse{
		Asset:       agg.Asset,
		RoundID:     agg.RoundID,
		Price:       FormatPrice(agg.Price.String(), decimals),
		RawPrice:    agg.Price.String(),
		Decimals:    decimals,
		Confidence:  agg.Confidence,
		SourcesUsed: agg.SourcesUsed,
		SpreadBps:   agg.SpreadBps,
		Timestamp:   agg.Timestamp.UTC(),
	}
}

func toObservationResponse(obs *types.PriceObservation, decimals int32, reason string) *ObservationResponse {
	price := ""
	if !obs.Price.IsNil() {
		price = FormatPrice(obs.Price.String(), decimals)
	}

	return &ObservationResponse{
		Source:     obs.Source.String(),
		Provider:   obs.Provider.String(),
		Price:      price,
		Confidence: obs.Confidence,
		Timestamp:  obs.Timestamp.UTC(),
		Reason:     reason,
	}
}

// FormatPrice scales a fixed-point integer down by decimals, e.g. ("123456", 2) -> "1234.56".
func FormatPrice(raw string, decimals int32) string {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}

	return value.Shift(-decimals).String()
}
