// Package logkeeper moves request log entries from the log topic into a search index.
package logkeeper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
)

// Indexer stores one log document under the given id.
type Indexer interface {
	Index(ctx context.Context, docID string, body []byte) error
}

// ESIndexer writes documents to an Elasticsearch index.
type ESIndexer struct {
	es    *elasticsearch.Client
	index string
}

func NewESIndexer(nodes []string, index string) (*ESIndexer, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: nodes})
	if err != nil {
		return nil, err
	}
	return &ESIndexer{es: es, index: index}, nil
}

func (i *ESIndexer) Index(ctx context.Context, docID string, body []byte) error {
	res, err := i.es.Index(
		i.index,
		bytes.NewReader(body),
		i.es.Index.WithDocumentID(docID),
		i.es.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index response: %s", res.Status())
	}
	return nil
}

// Keeper fans messages out to a fixed number of indexing workers.
type Keeper struct {
	indexer Indexer
	workers int
}

func New(indexer Indexer, workers int) *Keeper {
	if workers < 1 {
		workers = 1
	}
	return &Keeper{indexer: indexer, workers: workers}
}

// Run indexes messages from jobs until the channel is closed or ctx is done.
func (k *Keeper) Run(ctx context.Context, jobs <-chan kafka.Message) {
	var wg sync.WaitGroup
	wg.Add(k.workers)
	for workerID := 0; workerID < k.workers; workerID++ {
		go func(id int) {
			defer wg.Done()
			k.work(ctx, jobs, id)
		}(workerID)
	}
	wg.Wait()
}

func (k *Keeper) work(ctx context.Context, jobs <-chan kafka.Message, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Infof("[logkeeper][workerID:%d] context cancelled, exiting worker", workerID)
			return

		case msg, ok := <-jobs:
			if !ok {
				log.Infof("[logkeeper][workerID:%d] jobs channel closed, exiting worker", workerID)
				return
			}
			k.handle(ctx, msg, workerID)
		}
	}
}

func (k *Keeper) handle(ctx context.Context, msg kafka.Message, workerID int) {
	var entry logger.LogEntry
	if err := json.Unmarshal(msg.Value, &entry); err != nil {
		log.Errorf("[logkeeper][workerID:%d] failed to unmarshal log entry: %v", workerID, err)
		return
	}

	if err := k.indexer.Index(ctx, entry.DocumentID(), msg.Value); err != nil {
		log.Errorf("[logkeeper][workerID:%d] failed to index document: %v", workerID, err)
		return
	}
	log.Debugf("[logkeeper][workerID:%d][%s] log entry indexed", workerID, logger.Shorten(entry.RequestID))
}
