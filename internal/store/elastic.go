package store

import (
	"bytes"
	"context"
	"encoding/json"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/brandscope/intel-cli/internal/model"
)

const (
	jobIndex    = "brandscope-jobs"
	resultIndex = "brandscope-results"
)

// ElasticIndex mirrors job and result records into Elasticsearch so that
// operators can search across historical jobs. It is a secondary,
// best-effort sink: callers treat every write error as non-fatal.
type ElasticIndex struct {
	client *es.Client
}

// NewElasticIndex connects to the given Elasticsearch addresses.
func NewElasticIndex(addresses []string, apiKey string) (*ElasticIndex, error) {
	cfg := es.Config{Addresses: addresses}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := es.NewClient(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "elastic: new client")
	}
	return &ElasticIndex{client: client}, nil
}

// EnsureIndices creates the job and result indices if missing.
func (e *ElasticIndex) EnsureIndices(ctx context.Context) error {
	for _, name := range []string{jobIndex, resultIndex} {
		res, err := e.client.Indices.Exists(
			[]string{name},
			e.client.Indices.Exists.WithContext(ctx),
		)
		if err != nil {
			return eris.Wrapf(err, "elastic: check index %s", name)
		}
		res.Body.Close()
		if res.StatusCode == 200 {
			continue
		}

		create, err := e.client.Indices.Create(
			name,
			e.client.Indices.Create.WithContext(ctx),
		)
		if err != nil {
			return eris.Wrapf(err, "elastic: create index %s", name)
		}
		create.Body.Close()
		if create.IsError() {
			return eris.Errorf("elastic: create index %s: %s", name, create.String())
		}
	}
	return nil
}

// IndexJob writes the job document, keyed by job id.
func (e *ElasticIndex) IndexJob(ctx context.Context, job *model.CollectionJob) error {
	return e.index(ctx, jobIndex, job.ID, job)
}

// IndexResult writes the collected-data document, keyed by job id.
func (e *ElasticIndex) IndexResult(ctx context.Context, data *model.CollectedData) error {
	return e.index(ctx, resultIndex, data.JobID, data)
}

func (e *ElasticIndex) index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "elastic: marshal document")
	}

	res, err := e.client.Index(
		index,
		bytes.NewReader(body),
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return eris.Wrapf(err, "elastic: index %s/%s", index, id)
	}
	defer res.Body.Close()

	if res.IsError() {
		return eris.Errorf("elastic: index %s/%s: %s", index, id, res.String())
	}
	return nil
}

// SearchJobs runs a full-text query over indexed jobs and returns matches.
func (e *ElasticIndex) SearchJobs(ctx context.Context, query string, limit int) ([]model.CollectionJob, error) {
	if limit <= 0 {
		limit = 25
	}
	body, err := json.Marshal(map[string]any{
		"size": limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"brand_id", "competitor_id", "area_id", "status", "id"},
			},
		},
		"sort": []map[string]any{
			{"created_at": map[string]any{"order": "desc", "unmapped_type": "date"}},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "elastic: marshal query")
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(jobIndex),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "elastic: search jobs")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, eris.Errorf("elastic: search jobs: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source model.CollectionJob `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, eris.Wrap(err, "elastic: decode search response")
	}

	jobs := make([]model.CollectionJob, 0, len(searchResult.Hits.Hits))
	for _, hit := range searchResult.Hits.Hits {
		jobs = append(jobs, hit.Source)
	}
	return jobs, nil
}

// logIndexErr records a swallowed secondary-write failure.
func logIndexErr(op, id string, err error) {
	zap.L().Warn("secondary index write failed",
		zap.String("op", op),
		zap.String("id", id),
		zap.Error(err))
}
