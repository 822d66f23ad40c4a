package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gregorybednov/ledgerflow/failure"
	"github.com/gregorybednov/ledgerflow/flow"
)

// Inbox accepts envelopes relayed from other parties.
type Inbox interface {
	Deliver(env flow.Envelope) error
}

// Peers posts envelopes to other parties' inbox endpoints. Party names
// are matched case-insensitively, since viper lowercases map keys.
type Peers struct {
	addrs  map[string]string
	client *http.Client
}

var _ flow.Poster = (*Peers)(nil)

func NewPeers(addrs map[string]string, client *http.Client) *Peers {
	p := &Peers{addrs: make(map[string]string, len(addrs)), client: client}
	for name, addr := range addrs {
		p.addrs[strings.ToLower(name)] = strings.TrimRight(addr, "/")
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	return p
}

func (p *Peers) Post(ctx context.Context, env flow.Envelope) error {
	base, ok := p.addrs[strings.ToLower(string(env.To))]
	if !ok {
		return failure.Newf(failure.CodeTransportFailure, "no route to %s", env.To)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return failure.Wrap(failure.CodeTransportFailure, "encode envelope", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/inbox", bytes.NewReader(body))
	if err != nil {
		return failure.Wrap(failure.CodeTransportFailure, fmt.Sprintf("post to %s", env.To), err)
	}
	req.Header.Set("content-type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.Wrap(failure.CodeTransportFailure, fmt.Sprintf("post to %s", env.To), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return failure.Newf(failure.CodeTransportFailure, "%s answered %d: %s", env.To, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
