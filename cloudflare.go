package cdn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"

	"github.com/cloudflare/cloudflare-go"
)

func newCloudflareProvider(token string, zoneID string) (cf *cloudflareProvider, err error) {
	cf = new(cloudflareProvider)
	// every provider call gets the same per-request budget as the source
	// fetch; retries are the fetch step's job, not the record calls'
	cf.api, err = cloudflare.NewWithAPIToken(token,
		cloudflare.HTTPClient(&http.Client{Timeout: requestTimeout}),
		cloudflare.UsingRetryPolicy(0, 0, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.zoneID = zoneID
	cf.logger = discard
	cf.comment = "managed by cdn"
	cf.ttl = 60
	return cf, err
}

// cloudflareProvider implements cdn.Provider.
//
// It should be constructed using newCloudflareProvider.
type cloudflareProvider struct {
	api     *cloudflare.API
	logger  *log.Logger
	zoneID  string // when empty the zone is discovered from the domain name
	comment string // optional comment to attach to each new DNS entry
	ttl     int
}

// ReplaceDNSRecords deletes every existing A record for domain and creates
// one unproxied A record per addr. List, delete, and create failures are
// logged and skipped so one bad record never stops the rest of the batch;
// the returned count covers only the creates that succeeded.
func (cf *cloudflareProvider) ReplaceDNSRecords(ctx context.Context, domain string, addrs []netip.Addr) (created int, err error) {

	// this nil check feels odd and redundant, but it's technically possible for someone to use the type directly and cause a program crash.
	if cf.api == nil {
		return 0, errors.New("cdn.cloudflareProvider.ReplaceDNSRecords: cloudflareProvider should be constructed with newCloudflareProvider")
	}

	zid := cf.zoneID
	if zid == "" {
		zid, err = cf.getZoneIDFromDomain(ctx, domain)
		if err != nil {
			return 0, fmt.Errorf("unable to get zone ID for %s: %w", domain, err)
		}
	}
	cf.logger.Printf("using zone ID: %s\n", zid)
	cf.logger.Printf("looking up A records for %s...\n", domain)

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: "A",
		Name: domain,
	})
	if err != nil {
		// a failed or garbled listing means we can't clean up, but stale
		// records are still better than no records at all
		cf.logger.Printf("error listing records for %s, treating as none: %s\n", domain, err)
		records = nil
	}
	cf.logger.Printf("found %d existing records\n", len(records))

	for _, r := range records {
		cf.logger.Printf("deleting DNS record %s (%s)...\n", r.ID, r.Content)
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), r.ID); err != nil {
			cf.logger.Printf("unable to delete DNS record %s: %s\n", r.ID, err)
			continue
		}
		cf.logger.Printf("successfully deleted record %s\n", r.ID)
	}

	for _, a := range addrs {
		if !a.Is4() {
			cf.logger.Printf("skipping %s: only IPv4 addresses become A records\n", a)
			continue
		}
		cf.logger.Printf("creating record for %s...", a)
		record, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
			Type:    "A",
			Name:    domain,
			Content: a.String(),
			ZoneID:  zid,
			TTL:     cf.ttl,
			Proxied: cloudflare.BoolPtr(false),
			Comment: cf.comment,
		})
		if err != nil {
			cf.logger.Printf("error creating DNS record for %s: %s\n", a, err)
			continue
		}
		created++
		cf.logger.Printf("successfully added record: %s -> %s\n", record.ID, record.Content)
	}

	return created, nil
}

func (cf *cloudflareProvider) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}

	max := 0
	for _, z := range zones {
		if strings.HasSuffix(domain, z.Name) && len(z.Name) > max {
			max, zid = len(z.Name), z.ID
		}
	}
	if max == 0 {
		return "", fmt.Errorf("unable to find a zone matching \"%s\"", domain)
	}
	return zid, nil
}
