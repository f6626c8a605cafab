package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	SearchPath       = "/vacancies"
	SuggestAreasPath = "/suggests/areas"
)

type SearchParams struct {
	// hhparam is custom tag for reflect. Please see buildParams.
	Text        string   `hhparam:"text" mapstructure:"-"`
	Areas       []int    `hhparam:"area" mapstructure:"areas"`
	Page        int      `hhparam:"page" mapstructure:"-"`
	PerPage     int      `hhparam:"per_page" mapstructure:"per-page"`
	DateFrom    string   `hhparam:"date_from" mapstructure:"-"`
	OrderBy     string   `hhparam:"order_by" mapstructure:"order-by"`
	SearchField string   `hhparam:"search_field" mapstructure:"search-field"`
	Schedules   []string `hhparam:"schedule" mapstructure:"schedules"`
	Experience  string   `hhparam:"experience" mapstructure:"experience"`
	Employer    uint     `hhparam:"employer_id" mapstructure:"employer-id"`
}

type itemResponse struct {
	Items   []any `json:"items"`
	Found   int   `json:"found"`
	Pages   int   `json:"pages"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

func (c *Connector) search(ctx context.Context, params *SearchParams) ([]*vacancy, int, error) {
	var response itemResponse
	endpoint := fmt.Sprintf("%s%s", c.cfg.APIURL, SearchPath)
	if err := c.http.GetJSON(ctx, endpoint, buildParams(params), &response); err != nil {
		return nil, 0, err
	}

	vacancies, err := decodeVacancies(response.Items)
	if err != nil {
		return nil, 0, err
	}
	return vacancies, response.Found, nil
}

func decodeVacancies(items []any) ([]*vacancy, error) {
	var vacancies []*vacancy
	cfg := &mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   &vacancies,
		TagName:  "json",
		// ids arrive as strings, salaries as numbers; tolerate either.
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode vacancies: %w", err)
	}
	return vacancies, nil
}

type suggestResponse struct {
	Items []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"items"`
}

func (c *Connector) suggestArea(ctx context.Context, name string) (int, error) {
	var response suggestResponse
	endpoint := fmt.Sprintf("%s%s", c.cfg.APIURL, SuggestAreasPath)
	if err := c.http.GetJSON(ctx, endpoint, url.Values{"text": {name}}, &response); err != nil {
		return 0, err
	}

	best := ""
	for _, item := range response.Items {
		if strings.EqualFold(strings.TrimSpace(item.Text), name) {
			best = item.ID
			break
		}
		if best == "" {
			best = item.ID
		}
	}
	if best == "" {
		return 0, nil
	}
	return strconv.Atoi(best)
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	value := reflect.ValueOf(params).Elem()
	for _, field := range reflect.VisibleFields(value.Type()) {
		key := field.Tag.Get("hhparam")
		if key == "" {
			continue
		}

		switch v := value.FieldByIndex(field.Index).Interface().(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			// page 0 is the first page and still has to be sent.
			if s != "" && (s != "0" || key == "page") {
				q.Set(key, s)
			}
		}
	}

	return q
}
