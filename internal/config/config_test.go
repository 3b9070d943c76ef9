package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DispatchPageSize != 10 || cfg.TrackingInterval != 5*time.Second ||
		cfg.DeliverySpeedKmh != 30 || cfg.LocationMaxAge != 2*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.OrderEventsTopic != "order-events" || cfg.LocationTopic != "rider-locations" {
		t.Fatalf("unexpected topics %+v", cfg)
	}
	if !strings.HasPrefix(cfg.OrderEventsGroup, "joloride-feed-") {
		t.Fatalf("expected per-host group, got %q", cfg.OrderEventsGroup)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("DISPATCH_PAGE_SIZE", "25")
	t.Setenv("TRACKING_INTERVAL", "2s")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("LOG_LEVEL", "DEBUG")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.DispatchPageSize != 25 || cfg.TrackingInterval != 2*time.Second || !cfg.RunMigrations || cfg.LogLevel != "debug" {
		t.Fatalf("overrides not applied %+v", cfg)
	}
}

func TestLoadServerConfigJoinsErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("TRACKING_INTERVAL", "soon")
	t.Setenv("DISPATCH_PAGE_SIZE", "0")
	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET", "TRACKING_INTERVAL", "DISPATCH_PAGE_SIZE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in %v", want, err)
		}
	}
}

func TestLoadConsumerConfigRequiresDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	if _, err := LoadConsumerConfig(); err == nil || !strings.Contains(err.Error(), "PG_DSN") {
		t.Fatalf("expected PG_DSN error, got %v", err)
	}
	t.Setenv("PG_DSN", "postgres://localhost/jolo")
	t.Setenv("KAFKA_GROUP", "archiver-test")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Group != "archiver-test" || cfg.RetryAttempts != 3 {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JOLO_TEST_A=fromfile\nJOLO_TEST_B=fromfile\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOLO_TEST_A", "fromenv")
	t.Setenv("JOLO_TEST_B", "")
	os.Unsetenv("JOLO_TEST_B")
	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("JOLO_TEST_B") })
	if os.Getenv("JOLO_TEST_A") != "fromenv" || os.Getenv("JOLO_TEST_B") != "fromfile" {
		t.Fatalf("unexpected env A=%q B=%q", os.Getenv("JOLO_TEST_A"), os.Getenv("JOLO_TEST_B"))
	}
}
