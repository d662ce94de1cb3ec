package repository

import (
	"context"
	"sync"

	"github.com/fekuna/omnipos-backoffice/internal/model"
	"github.com/fekuna/omnipos-backoffice/internal/order/dto"
	"github.com/fekuna/omnipos-backoffice/pkg/search"
)

const orderMapping = `{
	"mappings": {
		"properties": {
			"orderNumber": { "type": "keyword" },
			"customerName": { "type": "text" },
			"customerPhone": { "type": "keyword" },
			"orderStatus": { "type": "keyword" },
			"paymentStatus": { "type": "keyword" },
			"finalAmount": { "type": "scaled_float", "scaling_factor": 10000 },
			"createdAt": { "type": "date" }
		}
	}
}`

// orderDocument is the searchable projection of an order; line items stay in Postgres.
type orderDocument struct {
	OrderNumber   string `json:"orderNumber"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	OrderStatus   string `json:"orderStatus"`
	PaymentStatus string `json:"paymentStatus"`
	FinalAmount   string `json:"finalAmount"`
	CreatedAt     string `json:"createdAt"`
}

type ElasticIndex struct {
	es    *search.Client
	index string

	once    sync.Once
	initErr error
}

func NewElasticIndex(es *search.Client, index string) *ElasticIndex {
	return &ElasticIndex{es: es, index: index}
}

func (x *ElasticIndex) ensureIndex(ctx context.Context) error {
	x.once.Do(func() {
		x.initErr = x.es.CreateIndex(ctx, x.index, orderMapping)
	})
	return x.initErr
}

func (x *ElasticIndex) Index(ctx context.Context, o *model.Order) error {
	if err := x.ensureIndex(ctx); err != nil {
		return err
	}
	return x.es.Index(ctx, x.index, o.ID, orderDocument{
		OrderNumber:   o.OrderNumber,
		CustomerName:  o.Customer.Name,
		CustomerPhone: o.Customer.Phone,
		OrderStatus:   string(o.OrderStatus),
		PaymentStatus: string(o.PaymentStatus),
		FinalAmount:   o.FinalAmount.String(),
		CreatedAt:     o.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (x *ElasticIndex) Search(ctx context.Context, f *dto.OrderFilters) ([]string, int, error) {
	must := []map[string]interface{}{
		{
			"multi_match": map[string]interface{}{
				"query":  f.Search,
				"type":   "bool_prefix",
				"fields": []string{"orderNumber", "customerName", "customerPhone"},
			},
		},
	}
	filter := []map[string]interface{}{}
	if f.OrderStatus != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"orderStatus": f.OrderStatus}})
	}
	if f.PaymentStatus != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"paymentStatus": f.PaymentStatus}})
	}

	q := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"from":    (f.Page - 1) * f.PageSize,
		"size":    f.PageSize,
		"_source": false,
	}

	res, err := x.es.Search(ctx, x.index, q)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]string, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, res.Hits.Total.Value, nil
}
