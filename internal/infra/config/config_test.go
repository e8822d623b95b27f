package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("explicit missing file should fail, got %+v", cfg)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Store != StoreMemory || cfg.App.HTTPAddr != ":8080" {
		t.Fatalf("app = %+v", cfg.App)
	}
	if cfg.Engine.Waitlist.OfferResponseWindow != 2*time.Hour || cfg.Engine.Waitlist.EntryTTL != 14*24*time.Hour {
		t.Fatalf("waitlist = %+v", cfg.Engine.Waitlist)
	}
	if cfg.Engine.Waitlist.PriorityTable["faculty"] != 30 {
		t.Fatalf("priority table = %v", cfg.Engine.Waitlist.PriorityTable)
	}
	if len(cfg.Outbox.RetryBackoff) != 3 || cfg.Outbox.RetryBackoff[1] != 5*time.Second {
		t.Fatalf("retry backoff = %v", cfg.Outbox.RetryBackoff)
	}
	if cfg.Kafka.Enabled() || cfg.Redis.Enabled() || cfg.S3.Enabled() {
		t.Fatal("optional integrations must default to off")
	}
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slotkeeper.yaml")
	yaml := `
app:
  store: mongo
  log_level: debug
mongo:
  uri: mongodb://localhost:27017
engine:
  reassignment:
    fallback: WAITLIST
    emergency_threshold_hours: 12
  sweep:
    waitlist: "*/5 * * * *"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SLOTKEEPER_APP_HTTP_ADDR", ":9090")
	t.Setenv("SLOTKEEPER_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Store != StoreMongo || cfg.Mongo.Database != "slotkeeper" {
		t.Fatalf("store = %s, db = %s", cfg.App.Store, cfg.Mongo.Database)
	}
	if cfg.App.HTTPAddr != ":9090" {
		t.Fatalf("env override ignored: %s", cfg.App.HTTPAddr)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Engine.Reassignment.Fallback != "WAITLIST" || cfg.Engine.Reassignment.EmergencyThresholdHours != 12 {
		t.Fatalf("reassignment = %+v", cfg.Engine.Reassignment)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Config{
		App:    AppConfig{Store: "sqlite", LogLevel: "loud"},
		Notify: NotifyConfig{Mode: NotifyAsynq},
		Engine: EngineConfig{
			Reassignment: ReassignmentConfig{Fallback: "GUESS"},
			Sweep:        SweepConfig{Instances: "every now and then"},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"app.store", "app.log_level", "notify.mode asynq", "fallback", "engine.sweep.instances"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}
