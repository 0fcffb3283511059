package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(srv.Client(), "test-key")
	client.baseURL = srv.URL
	return srv, client
}

func TestFetchDecodesObservation(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "Seoul" {
			t.Errorf("q parameter: got %q", got)
		}
		if got := r.URL.Query().Get("units"); got != "metric" {
			t.Errorf("units parameter: got %q", got)
		}
		if got := r.URL.Query().Get("appid"); got != "test-key" {
			t.Errorf("appid parameter: got %q", got)
		}
		fmt.Fprint(w, `{"dt":1700000000,"id":1835848,"name":"Seoul","main":{"temp":15.2,"humidity":60},"wind":{"speed":3.1}}`)
	})

	obs, err := client.Fetch(context.Background(), "Seoul")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if obs.StationID != 1835848 || obs.City != "Seoul" || obs.Timestamp != 1700000000 {
		t.Errorf("identity fields: %+v", obs)
	}
	if obs.Temperature == nil || *obs.Temperature != 15.2 {
		t.Errorf("temperature: %v", obs.Temperature)
	}
	if obs.Humidity == nil || *obs.Humidity != 60 {
		t.Errorf("humidity: %v", obs.Humidity)
	}
	if obs.WindSpeed == nil || *obs.WindSpeed != 3.1 {
		t.Errorf("wind speed: %v", obs.WindSpeed)
	}
}

func TestFetchOmittedMeasurementsStayNil(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dt":1700000000,"id":1,"name":"Seoul","main":{},"wind":{}}`)
	})

	obs, err := client.Fetch(context.Background(), "Seoul")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if obs.Temperature != nil || obs.Humidity != nil || obs.WindSpeed != nil {
		t.Errorf("expected nil measurements, got %+v", obs)
	}
}

func TestFetchNonSuccessStatus(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"cod":"404","message":"city not found"}`)
	})

	_, err := client.Fetch(context.Background(), "Atlantis")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %T: %v", err, err)
	}
	if srcErr.City != "Atlantis" {
		t.Errorf("city: got %q", srcErr.City)
	}
	if srcErr.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d", srcErr.StatusCode)
	}
	if srcErr.Body == "" {
		t.Error("response body not captured")
	}
}

func TestFetchAllPreservesOrder(t *testing.T) {
	ids := map[string]int64{"Seoul": 1, "Busan": 2, "Incheon": 3}
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		city := r.URL.Query().Get("q")
		fmt.Fprintf(w, `{"dt":1700000000,"id":%d,"name":%q}`, ids[city], city)
	})

	cities := []string{"Seoul", "Busan", "Incheon"}
	observations, err := client.FetchAll(context.Background(), cities)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(observations) != len(cities) {
		t.Fatalf("expected %d observations, got %d", len(cities), len(observations))
	}
	for i, city := range cities {
		if observations[i].City != city {
			t.Errorf("position %d: got %q, want %q", i, observations[i].City, city)
		}
	}
}

func TestFetchAllFailsFast(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("q") == "Busan" {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "upstream unavailable")
			return
		}
		fmt.Fprint(w, `{"dt":1700000000,"id":1,"name":"Seoul"}`)
	})

	observations, err := client.FetchAll(context.Background(), []string{"Seoul", "Busan", "Incheon"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if observations != nil {
		t.Errorf("partial batch returned: %+v", observations)
	}

	var srcErr *SourceError
	if !errors.As(err, &srcErr) || srcErr.City != "Busan" {
		t.Errorf("expected SourceError for Busan, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected fetch to stop after the failure, saw %d calls", calls)
	}
}

func TestFetchCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream down")
	})

	// The breaker trips once consecutive failures exceed five.
	for i := 0; i < 6; i++ {
		_, err := client.Fetch(context.Background(), "Seoul")
		var srcErr *SourceError
		if !errors.As(err, &srcErr) {
			t.Fatalf("attempt %d: expected SourceError, got %v", i+1, err)
		}
	}
	if calls != 6 {
		t.Fatalf("expected 6 outbound calls before the circuit opens, got %d", calls)
	}

	// With the circuit open the next fetch fails fast, with no outbound call.
	_, err := client.Fetch(context.Background(), "Seoul")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected circuit-open error, got %v", err)
	}
	if calls != 6 {
		t.Errorf("outbound call made while circuit open: %d calls", calls)
	}
}

func TestFetchRequiresAPIKey(t *testing.T) {
	client := NewClient(http.DefaultClient, "")
	if _, err := client.Fetch(context.Background(), "Seoul"); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
