package vwo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/headline-goat/vwo-pulse/internal/logging"
	"github.com/headline-goat/vwo-pulse/internal/metrics"
)

// Page is one raw page of the campaign list.
type Page struct {
	Campaigns  []Campaign
	TotalCount int
}

// ListPage fetches one unfiltered page of campaigns.
func (c *Client) ListPage(ctx context.Context, offset, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "campaigns", c.campaignsURL(q), c.apiHeader())
	if err != nil {
		return nil, err
	}

	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode campaign list: %w", err)
	}
	metrics.CampaignPages.Inc()

	if env.Data == nil {
		return &Page{}, nil
	}
	return &Page{Campaigns: env.Data.PartialCollection, TotalCount: env.Data.TotalCount}, nil
}

// ListCampaigns walks the campaign list page by page and returns every
// campaign accepted by filter. The offset advances by the raw page length;
// listing stops once the server-reported total is reached or a page is
// empty. Any page failure aborts the whole listing.
func (c *Client) ListCampaigns(ctx context.Context, filter Filter) ([]Campaign, error) {
	log := logging.WithComponent("lister")

	var matched []Campaign
	offset := 0
	for {
		page, err := c.ListPage(ctx, offset, c.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list campaigns at offset %d: %w", offset, err)
		}

		for _, campaign := range page.Campaigns {
			if filter.Matches(campaign) {
				matched = append(matched, campaign)
			}
		}
		offset += len(page.Campaigns)

		log.Debug().Int("fetched", offset).Int("total", page.TotalCount).
			Int("matched", len(matched)).Str("status", filter.Status).Msg("campaign page")

		if offset >= page.TotalCount || len(page.Campaigns) == 0 {
			break
		}
	}

	log.Info().Int("matched", len(matched)).Int("scanned", offset).Str("status", filter.Status).
		Msg("campaign listing complete")
	return matched, nil
}

// GetCampaign fetches the full campaign detail including goals and
// aggregated data.
func (c *Client) GetCampaign(ctx context.Context, id int64) (*Campaign, error) {
	reqURL := fmt.Sprintf("%s/%d", c.campaignsURL(nil), id)

	body, err := c.getItem(ctx, "campaign", reqURL, c.apiHeader())
	if err != nil {
		return nil, err
	}

	var env campaignEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode campaign %d: %w", id, err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("campaign %d: %w", id, ErrEmptyPayload)
	}
	return env.Data, nil
}
