package mq

import (
	"Dyvine/internal/task"
	"context"
	"sync"
)

// Publisher hands failed items to the retry flow over one shared client,
// re-dialing on the next publish after the connection drops.
type Publisher struct {
	url  string
	topo Topology

	mu     sync.Mutex
	client *Client
}

func NewPublisher(url string, topo Topology) *Publisher {
	return &Publisher{url: url, topo: topo}
}

func (p *Publisher) PublishItem(ctx context.Context, msg task.ItemRetryMessage) error {
	client, err := p.get()
	if err != nil {
		return err
	}
	return client.PublishItem(ctx, msg)
}

func (p *Publisher) get() (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		if !p.client.Closed() {
			return p.client, nil
		}
		p.client.Close()
		p.client = nil
	}
	client, err := Dial(p.url, p.topo)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

// Close drops the shared client, if any.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Close()
	p.client = nil
}
