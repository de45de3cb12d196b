package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				l := Get()
				So(l, ShouldNotBeNil)
				So(func() { l.Info(context.Background(), "hello", String("k", "v")) }, ShouldNotPanic)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := InitWith(Options{Format: "xml"})

			Convey("Then it reports an error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "format")
			})
		})

		Convey("When initialized with an unknown level", func() {
			err := InitWith(Options{Level: "loud"})

			Convey("Then it reports an error", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWith(Options{Format: "json", Level: "debug", Writer: &buf}), ShouldBeNil)
		defer func() { _ = Init() }()

		ctx := context.Background()

		Convey("When logging through a named child with fields", func() {
			Named("attest").With(String("claimant", "dev-1")).Warn(ctx, "rejected", String("code", "EXPIRED"), Int("n", 2))

			var rec map[string]any
			So(json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec), ShouldBeNil)

			Convey("Then the record carries name, fields and source", func() {
				So(rec["msg"], ShouldEqual, "rejected")
				So(rec["logger"], ShouldEqual, "attest")
				So(rec["claimant"], ShouldEqual, "dev-1")
				So(rec["code"], ShouldEqual, "EXPIRED")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When the level is raised to error", func() {
			So(SetLevelString("error"), ShouldBeNil)
			Get().Info(ctx, "dropped")

			Convey("Then info records are suppressed", func() {
				So(strings.TrimSpace(buf.String()), ShouldBeEmpty)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "INFO", "warn", "warning", "error", ""} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
		So(SetLevelString("info"), ShouldBeNil)
	})
}
