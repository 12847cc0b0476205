package clickhouse

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildDSNNative(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch.internal",
		Port:        9000,
		Database:    "vnflow",
		User:        "default",
		Password:    "p@ss:word",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 30 * time.Second,
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Scheme != "clickhouse" {
		t.Fatalf("scheme = %q", u.Scheme)
	}
	if u.Host != "ch.internal:9000" {
		t.Fatalf("host = %q", u.Host)
	}
	if pw, _ := u.User.Password(); pw != "p@ss:word" {
		t.Fatalf("password did not survive escaping: %q", pw)
	}
	q := u.Query()
	if q.Get("dial_timeout") != "5s" {
		t.Fatalf("dial_timeout = %q", q.Get("dial_timeout"))
	}
	if q.Get("max_execution_time") != "30" {
		t.Fatalf("max_execution_time = %q", q.Get("max_execution_time"))
	}
	if strings.Contains(dsn, "write_timeout") {
		t.Fatalf("write_timeout leaked into dsn: %s", dsn)
	}
}

func TestBuildDSNHTTPAndAsync(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:         "localhost",
		Port:         8123,
		Database:     "vnflow",
		UseHTTP:      true,
		AsyncInsert:  true,
		WaitForAsync: true,
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	if u.Scheme != "http" {
		t.Fatalf("scheme = %q", u.Scheme)
	}
	q := u.Query()
	if q.Get("async_insert") != "1" || q.Get("wait_for_async_insert") != "1" {
		t.Fatalf("async params missing: %s", dsn)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without host")
	}
}
