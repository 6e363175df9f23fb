package helpers

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// NewESClient creates an Elasticsearch client with sane defaults and optional basic auth.
func NewESClient(addrs []string, username, password string) (*elasticsearch.Client, error) {
	cfg := elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		},
	}
	return elasticsearch.NewClient(cfg)
}

// ESIndexer writes JSON documents into a single index.
type ESIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewESIndexer(client *elasticsearch.Client, index string) *ESIndexer {
	return &ESIndexer{client: client, index: index}
}

func (x *ESIndexer) Index() string { return x.index }

// Put indexes doc under id. Re-indexing the same id overwrites the document,
// so redelivered messages are idempotent.
func (x *ESIndexer) Put(ctx context.Context, id string, doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{
		Index:      x.index,
		DocumentID: id,
		Body:       bytes.NewReader(b),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("index %s/%s: %s: %s", x.index, id, res.Status(), bytes.TrimSpace(body))
	}
	return nil
}
