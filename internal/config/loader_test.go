package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	convey.Convey("Given a clean environment", t, func() {
		for _, key := range []string{
			"REFBOX_CONFIG", "REFBOX_ADDR", "REFBOX_LOG_LEVEL", "REFBOX_STORE_DRIVER",
			"REFBOX_STORE_PATH", "REFBOX_EVENT_BUFFER_SIZE", "REFBOX_REPLAY_SIZE",
			"REFBOX_MATCH_LENGTH_SECONDS", "REFBOX_AUTO_LOAD", "REFBOX_SEED_FILE",
		} {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}

		convey.Convey("Loading yields the defaults", func() {
			cfg, err := Load()
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.EventBufferSize, convey.ShouldEqual, 256)
			convey.So(cfg.ReplaySize, convey.ShouldEqual, 128)
			convey.So(cfg.MatchLengthSeconds, convey.ShouldEqual, 150)
			convey.So(cfg.AutoLoad, convey.ShouldBeTrue)
		})

		convey.Convey("Environment variables override the defaults", func() {
			t.Setenv("REFBOX_ADDR", ":9090")
			t.Setenv("REFBOX_STORE_DRIVER", "sqlite")
			t.Setenv("REFBOX_STORE_PATH", "/tmp/tournament.db")
			t.Setenv("REFBOX_MATCH_LENGTH_SECONDS", "180")

			cfg, err := Load()
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
			convey.So(cfg.StorePath, convey.ShouldEqual, "/tmp/tournament.db")
			convey.So(cfg.MatchLengthSeconds, convey.ShouldEqual, 180)
		})

		convey.Convey("A YAML file sits between defaults and environment", func() {
			path := filepath.Join(t.TempDir(), "refbox.yaml")
			payload := "addr: \":7070\"\nlog_level: debug\n"
			convey.So(os.WriteFile(path, []byte(payload), 0o600), convey.ShouldBeNil)
			t.Setenv("REFBOX_CONFIG", path)
			t.Setenv("REFBOX_ADDR", ":6060")

			cfg, err := Load()
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
		})

		convey.Convey("A missing config file fails the load", func() {
			t.Setenv("REFBOX_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

			_, err := Load()
			convey.So(err, convey.ShouldWrap, ErrLoadConfig)
		})

		convey.Convey("Validation rejects impossible configurations", func() {
			convey.Convey("an empty listen address", func() {
				t.Setenv("REFBOX_ADDR", "")
				_, err := Load()
				convey.So(err, convey.ShouldWrap, ErrInvalidConfig)
			})

			convey.Convey("an unknown store driver", func() {
				t.Setenv("REFBOX_STORE_DRIVER", "etched-stone")
				_, err := Load()
				convey.So(err, convey.ShouldWrap, ErrInvalidConfig)
			})

			convey.Convey("a non-positive match length", func() {
				t.Setenv("REFBOX_MATCH_LENGTH_SECONDS", "0")
				_, err := Load()
				convey.So(err, convey.ShouldWrap, ErrInvalidConfig)
			})
		})
	})
}
