package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/attest/internal/adapters/repository"
	"github.com/okian/attest/internal/config"
	"github.com/okian/attest/internal/domain/token"
	"github.com/okian/attest/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

const testSecret = "cli-test-secret-0001"

func testConfig() *config.Config {
	cfg := config.New()
	cfg.TokenSecret = testSecret
	cfg.StoreDriver = config.DriverMemory
	return cfg
}

func TestLoadEnvFile(t *testing.T) {
	Convey("Given dotenv paths", t, func() {
		dir := t.TempDir()
		missing := filepath.Join(dir, "missing.env")

		Convey("A missing default file is ignored", func() {
			So(loadEnvFile(missing, false), ShouldBeNil)
			So(loadEnvFile("", true), ShouldBeNil)
		})

		Convey("A missing explicit file is an error", func() {
			So(loadEnvFile(missing, true), ShouldNotBeNil)
		})

		Convey("A present file populates unset variables", func() {
			path := filepath.Join(dir, "attest.env")
			So(os.WriteFile(path, []byte("ATTEST_CLI_TEST_VALUE=from-file\n"), 0o600), ShouldBeNil)
			defer func() { _ = os.Unsetenv("ATTEST_CLI_TEST_VALUE") }()

			So(loadEnvFile(path, true), ShouldBeNil)
			So(os.Getenv("ATTEST_CLI_TEST_VALUE"), ShouldEqual, "from-file")
		})
	})
}

func TestWiring(t *testing.T) {
	Convey("Given a configuration", t, func() {
		ctx := context.Background()
		cfg := testConfig()

		Convey("The memory driver opens an in-process store", func() {
			st, err := openStore(ctx, cfg)
			So(err, ShouldBeNil)
			So(st, ShouldHaveSameTypeAs, &repository.MemoryStore{})
			So(st.Close(), ShouldBeNil)
		})

		Convey("The sqlite driver opens a database file", func() {
			cfg.StoreDriver = config.DriverSQLite
			cfg.StorePath = filepath.Join(t.TempDir(), "attest.db")

			st, err := openStore(ctx, cfg)
			So(err, ShouldBeNil)
			So(st.Ping(ctx), ShouldBeNil)
			So(st.Close(), ShouldBeNil)
		})

		Convey("An unknown driver is rejected", func() {
			cfg.StoreDriver = "postgres"
			_, err := openStore(ctx, cfg)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Previous secrets still verify", func() {
			old := testConfig()
			old.TokenSecret = "rotated-out-secret-01"
			oldRing, err := newKeyring(old)
			So(err, ShouldBeNil)
			issued, err := token.NewIssuer(oldRing).Issue(ctx, token.Request{Type: token.TypePromo, Subject: "spring", TTL: time.Minute})
			So(err, ShouldBeNil)

			cfg.TokenPreviousSecrets = old.TokenSecret
			ring, err := newKeyring(cfg)
			So(err, ShouldBeNil)
			So(ring.Len(), ShouldEqual, 2)

			p, err := token.Verify(issued.Bytes, ring, time.Now())
			So(err, ShouldBeNil)
			So(p.Subject, ShouldEqual, "spring")
		})

		Convey("Service options build with the default catalog", func() {
			opts, err := serviceOptions(cfg, logger.Nop())
			So(err, ShouldBeNil)
			So(opts, ShouldNotBeEmpty)
		})

		Convey("A missing catalog file fails", func() {
			cfg.CatalogPath = filepath.Join(t.TempDir(), "nope.toml")
			_, err := serviceOptions(cfg, logger.Nop())
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRootCommand(t *testing.T) {
	Convey("Given the root command", t, func() {
		root := newRootCmd()

		Convey("It exposes the subcommands", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			So(names["serve"], ShouldBeTrue)
			So(names["mint"], ShouldBeTrue)
			So(names["drill"], ShouldBeTrue)
		})
	})
}

func TestMintCommand(t *testing.T) {
	t.Setenv("ATTEST_TOKEN_SECRET", testSecret)
	t.Setenv("ATTEST_STORE_DRIVER", config.DriverMemory)

	Convey("Given the mint command", t, func() {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})

		Convey("It prints a token signed with the configured secret", func() {
			root.SetArgs([]string{"--env-file", "", "mint", "--type", "tip", "--subject", "staff-7", "--ttl", "2m"})
			So(root.Execute(), ShouldBeNil)

			b, err := token.DecodeText(strings.TrimSpace(out.String()))
			So(err, ShouldBeNil)
			ring, err := newKeyring(testConfig())
			So(err, ShouldBeNil)
			p, err := token.Verify(b, ring, time.Now())
			So(err, ShouldBeNil)
			So(p.Type, ShouldEqual, token.TypeTip)
			So(p.Subject, ShouldEqual, "staff-7")
			So(p.ExpiresAt.Sub(p.IssuedAt), ShouldEqual, 2*time.Minute)
		})

		Convey("A user-bound type without a subject is refused", func() {
			root.SetArgs([]string{"--env-file", "", "mint", "--type", "visit"})
			So(root.Execute(), ShouldNotBeNil)
			So(out.Len(), ShouldEqual, 0)
		})

		Convey("An unknown type is refused", func() {
			root.SetArgs([]string{"--env-file", "", "mint", "--type", "lottery", "--subject", "x"})
			err := root.Execute()
			So(errors.Is(err, token.ErrUnknownType), ShouldBeTrue)
		})
	})
}
