package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the job grouping label every push is made under.
const JobName = "tempest"

var ErrGatewayUnset = errors.New("pushgateway address is not set")

// Publisher pushes a Registry to a Prometheus Pushgateway.
type Publisher struct {
	log    log.Logger
	url    string
	client push.HTTPDoer
}

// NewPublisher creates a publisher for the gateway at url. The address may
// omit the scheme, in which case http is used.
func NewPublisher(logger log.Logger, url string) (*Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, ErrGatewayUnset
	}
	return &Publisher{
		log: logger,
		url: url,
	}, nil
}

// WithClient overrides the HTTP client used for the push.
func (p *Publisher) WithClient(client push.HTTPDoer) *Publisher {
	p.client = client
	return p
}

// Publish replaces everything stored under the job with the contents of reg.
func (p *Publisher) Publish(ctx context.Context, reg *Registry) error {
	pusher := push.New(p.url, JobName).Gatherer(reg.Gatherer())
	if p.client != nil {
		pusher = pusher.Client(p.client)
	}

	p.log.Info("pushing metrics", "gateway", p.url, "job", JobName, "tests", reg.Len())
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", p.url, err)
	}
	p.log.Info("metrics pushed", "gateway", p.url)
	return nil
}
