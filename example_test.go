package cdn_test

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/ikuncc183/cdn"
)

func ExampleNew() {
	c, err := cdn.New(
		"fast.example.com",
		cdn.UsingCloudflareZone(os.Getenv("CF_API_TOKEN"), os.Getenv("CF_ZONE_ID")),
		cdn.UsingWebSource("https://addressesapi.090227.xyz/ip.164746.xyz"),
		cdn.WithMaxIPs(5),
		cdn.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		log.Fatalf("error creating cdn client: %s", err)
	}
	// run once:
	err = c.Run(context.Background())
	if err != nil {
		log.Fatalf("record refresh failed: %s", err)
	}
}

func ExamplePickLine() {
	// some curated lists rank entries by measured latency;
	// take entry 31 and insist the list is long enough to contain it.
	c, err := cdn.New("fast.example.com",
		cdn.UsingCloudflare(os.Getenv("CF_API_TOKEN")),
		cdn.UsingWebSource("https://addressesapi.090227.xyz/ip.164746.xyz", cdn.PickLine(31, 32)),
	)
	if err != nil {
		log.Fatalf("error creating cdn client: %s", err)
	}
	// run once:
	err = c.Run(context.Background())
	if err != nil {
		log.Fatalf("record refresh failed: %s", err)
	}
}

func ExampleRunDaemon() {
	c, err := cdn.New("fast.example.com",
		cdn.UsingCloudflareZone(os.Getenv("CF_API_TOKEN"), os.Getenv("CF_ZONE_ID")),
		cdn.UsingWebSource("https://addressesapi.090227.xyz/ip.164746.xyz"),
	)
	if err != nil {
		log.Fatalf("error creating cdn client: %s", err)
	}

	// refresh every 15 minutes and stop after a day:
	ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
	defer cancel()
	cdn.RunDaemon(c, ctx, 15*time.Minute, nil)
}

func ExampleFromList() {
	src, err := cdn.FromList("104.16.1.1", "104.16.2.2")
	if err != nil {
		log.Fatalf("error building source: %s", err)
	}
	c, err := cdn.New("fast.example.com",
		cdn.UsingCloudflareZone(os.Getenv("CF_API_TOKEN"), os.Getenv("CF_ZONE_ID")),
		cdn.UsingSource(src),
	)
	if err != nil {
		log.Fatalf("error creating cdn client: %s", err)
	}
	// run once:
	err = c.Run(context.Background())
	if err != nil {
		log.Fatalf("record refresh failed: %s", err)
	}
}
