// Package search serves the trainer pool from an Elasticsearch index.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const defaultPageSize = 500

type trainerDoc struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Skills     []string `json:"skills"`
	HourlyRate *float64 `json:"hourly_rate"`
	Location   *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"location"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source trainerDoc    `json:"_source"`
			Sort   []interface{} `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// TrainerIndex implements matching.TrainerPool over an index of trainer documents.
type TrainerIndex struct {
	client   *elasticsearch.Client
	index    string
	pageSize int
}

func NewTrainerIndex(client *elasticsearch.Client, index string) *TrainerIndex {
	return &TrainerIndex{client: client, index: index, pageSize: defaultPageSize}
}

// ListTrainers pages through the whole index sorted by id.
func (x *TrainerIndex) ListTrainers(ctx context.Context) ([]models.Trainer, error) {
	trainers := []models.Trainer{}
	var after []interface{}

	for {
		page, next, err := x.page(ctx, after)
		if err != nil {
			return nil, apperrors.NewSearchQueryFailedError(x.index, err)
		}
		trainers = append(trainers, page...)
		if len(page) < x.pageSize || next == nil {
			return trainers, nil
		}
		after = next
	}
}

func (x *TrainerIndex) page(ctx context.Context, after []interface{}) ([]models.Trainer, []interface{}, error) {
	query := map[string]interface{}{
		"size":  x.pageSize,
		"query": map[string]interface{}{"match_all": map[string]interface{}{}},
		"sort":  []interface{}{map[string]interface{}{"id": "asc"}},
	}
	if after != nil {
		query["search_after"] = after
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, nil, err
	}

	req := esapi.SearchRequest{
		Index: []string{x.index},
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, nil, fmt.Errorf("search failed: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.Trainer, 0, len(r.Hits.Hits))
	var last []interface{}
	for _, hit := range r.Hits.Hits {
		out = append(out, hit.Source.toTrainer())
		last = hit.Sort
	}
	return out, last, nil
}

func (d trainerDoc) toTrainer() models.Trainer {
	t := models.Trainer{
		ID:         d.ID,
		Name:       d.Name,
		Skills:     d.Skills,
		HourlyRate: d.HourlyRate,
		Email:      d.Email,
		Phone:      d.Phone,
	}
	if d.Location != nil {
		lat, lon := d.Location.Lat, d.Location.Lon
		t.Latitude = &lat
		t.Longitude = &lon
	}
	return t
}
