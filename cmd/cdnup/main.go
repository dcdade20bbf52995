package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/ikuncc183/cdn"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

// defaultSourceURL serves the curated list of preferred Cloudflare edge IPs.
const defaultSourceURL = "https://addressesapi.090227.xyz/ip.164746.xyz"

var config = struct {
	Token     string
	Domain    string
	ZoneID    string
	SourceURL string
	KeyFile   string
	MaxIPs    int
	Interval  time.Duration
}{}

var logger = log.New(os.Stdout, "", log.LstdFlags)

func init() {
	_ = godotenv.Load()
	config.Token = os.Getenv("CF_API_TOKEN")
	config.ZoneID = os.Getenv("CF_ZONE_ID")
	config.Domain = os.Getenv("CF_DOMAIN_NAME")
	config.SourceURL = env("IP_SOURCE_URL", defaultSourceURL)
	config.MaxIPs = maxIPs(os.Getenv("MAX_IPS"))

	flag.StringVar(&config.Domain, "d", config.Domain, "domain whose A records are replaced")
	flag.StringVar(&config.SourceURL, "s", config.SourceURL, "URL of the preferred IP list")
	flag.IntVar(&config.MaxIPs, "n", config.MaxIPs, "maximum number of IPs to use (0 = all)")
	flag.StringVar(&config.KeyFile, "k", filepath.Join(os.Getenv("HOME"), ".cloudflare"), "Path to cloudflare API credentials file, used when CF_API_TOKEN is unset")
	flag.DurationVar(&config.Interval, "i", 0, "duration between refreshes (0 = run once)")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {

	if err := validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	logger.Printf("refreshing %s from %s (max %d IPs)", config.Domain, config.SourceURL, config.MaxIPs)

	token, err := resolveToken()
	if err != nil {
		return fmt.Errorf("error resolving api token: %w", err)
	}

	client, err := cdn.New(config.Domain,
		cdn.UsingCloudflareZone(token, config.ZoneID),
		cdn.UsingWebSource(config.SourceURL),
		cdn.WithMaxIPs(config.MaxIPs),
		cdn.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("error creating cdn.Client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx); err != nil {
		if config.Interval <= 0 {
			return fmt.Errorf("run: %w", err)
		}
		// in daemon mode a failed refresh is only a skipped cycle
		logger.Printf("run: %s", err)
	}

	if config.Interval > 0 {
		cdn.RunDaemon(client, ctx, config.Interval, logger)
		<-ctx.Done()
	}

	return nil
}

func validate() error {

	if config.Domain == "" {
		return errors.New("domain cannot be empty: set CF_DOMAIN_NAME or -d")
	}

	if !strings.Contains(config.Domain, ".") {
		return errors.New("domain must have at least one dot")
	}

	if config.ZoneID == "" {
		return errors.New("zone ID cannot be empty: set CF_ZONE_ID")
	}

	if config.SourceURL == "" {
		return errors.New("source URL cannot be empty: set IP_SOURCE_URL or -s")
	}

	return nil
}

// maxIPs parses the MAX_IPS environment value.
// Anything that isn't a positive integer means "no limit".
func maxIPs(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// resolveToken prefers the CF_API_TOKEN environment variable and falls back
// to the key file, offering interactive setup when the file doesn't exist.
func resolveToken() (string, error) {
	if config.Token != "" {
		return config.Token, nil
	}

	_, err := os.Stat(config.KeyFile)
	if os.IsNotExist(err) {
		logger.Printf("key file \"%s\" does not exist\n", config.KeyFile)
		if err := runSetup(); err != nil {
			return "", fmt.Errorf("setup: %w", err)
		}
	}
	if err := verifyPermissions(config.KeyFile); err != nil {
		return "", err
	}
	return readKey(config.KeyFile)
}

func runSetup() error {
	logger.Println("running setup")
	time.Sleep(200 * time.Millisecond) // dirty timer hack to try to get stderr and stdout output lines to display in order
	fmt.Printf("Enter Cloudflare API Key: \n")
	bytekey, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("runSetup: error reading from stdin: %w", err)
	}
	key := string(bytekey)

	api, err := cloudflare.NewWithAPIToken(key)
	if err != nil {
		return fmt.Errorf("error creating api client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Println("verifying token...")
	result, err := api.VerifyAPIToken(ctx)
	if err != nil {
		return fmt.Errorf("unable to verify api token: %w", err)
	}
	if result.Status != "active" {
		return fmt.Errorf("expected api token status to be \"active\"; got \"%s\"", result.Status)
	}
	logger.Println("token verified successfully")

	logger.Printf("creating key file at \"%s\"\n", config.KeyFile)
	f, err := os.OpenFile(config.KeyFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", config.KeyFile, err)
	}
	defer f.Close()
	fmt.Fprintln(f, key)
	logger.Printf("token written to \"%s\"\n", config.KeyFile)
	return nil
}

func env(envvar string, defaultvalue string) string {
	e, found := os.LookupEnv(envvar)
	if found {
		return e
	}
	return defaultvalue
}

func readKey(path string) (key string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return string(keyb), nil
}

func verifyPermissions(path string) error {

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}

	return nil
}
