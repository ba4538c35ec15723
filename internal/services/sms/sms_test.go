package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asjpl/pcl-portal/internal/apperr"
)

func TestNormalizeAUPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0412 345 678", "+61412345678"},
		{"(04) 1234-5678", "+61412345678"},
		{"61412345678", "+61412345678"},
		{"412345678", "+61412345678"},
		{"+61 412 345 678", "+61412345678"},
		{"+14155550100", "+14155550100"},
		{"08 9221 0000", "+0892210000"},
		{"", ""},
		{"  ", ""},
		{"n/a", ""},
		{"+", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeAUPhone(tt.input); got != tt.want {
				t.Errorf("NormalizeAUPhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseInbound(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        Inbound
	}{
		{
			name:        "json with canonical keys",
			contentType: "application/json",
			body:        `{"from":"0412345678","to":"+61427526002","body":" hello ","message_id":"abc"}`,
			want:        Inbound{From: "+61412345678", To: "+61427526002", Body: "hello", ProviderSID: "abc"},
		},
		{
			name:        "json with alias keys and numeric id",
			contentType: "application/json; charset=utf-8",
			body:        `{"sender":"61412345678","recipient":"0427526002","Message":"hi","id":12345}`,
			want:        Inbound{From: "+61412345678", To: "+61427526002", Body: "hi", ProviderSID: "12345"},
		},
		{
			name:        "form encoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "From=0412345678&Body=on+my+way&smsId=x1",
			want:        Inbound{From: "+61412345678", To: "+61427526002", Body: "on my way", ProviderSID: "x1"},
		},
		{
			name:        "unknown content type falls back to form",
			contentType: "",
			body:        "origin=0412345678&content=yo",
			want:        Inbound{From: "+61412345678", To: "+61427526002", Body: "yo"},
		},
		{
			name:        "missing sender",
			contentType: "application/json",
			body:        `{"body":"who am i"}`,
			want:        Inbound{To: "+61427526002", Body: "who am i"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInbound(tt.contentType, []byte(tt.body), DefaultFrom)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseInbound_InvalidJSON(t *testing.T) {
	_, err := ParseInbound("application/json", []byte("{"), DefaultFrom)
	assert.Error(t, err)
}

func TestClient_Send(t *testing.T) {
	var received sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/sms/send", r.URL.Path)
		user, key, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "key", key)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response_code":"SUCCESS","data":{"messages":[{"message_id":"MSG-1"}]}}`))
	}))
	defer srv.Close()

	client := NewClient("user", "key", "").WithBaseURL(srv.URL)
	result, err := client.Send(context.Background(), "0412 345 678", " Your payment is due ")
	require.NoError(t, err)
	assert.Equal(t, "MSG-1", result.ProviderSID)
	assert.Equal(t, "+61412345678", result.To)

	require.Len(t, received.Messages, 1)
	assert.Equal(t, "+61412345678", received.Messages[0].To)
	assert.Equal(t, DefaultFrom, received.Messages[0].From)
	assert.Equal(t, "Your payment is due", received.Messages[0].Body)
}

func TestClient_SendFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"response":{"error":"Invalid recipient"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("user", "key", "").WithBaseURL(srv.URL).Send(context.Background(), "0412345678", "hi")
	assert.True(t, errors.Is(err, apperr.ErrIntegration))
	assert.Equal(t, "Invalid recipient", apperr.Message(err))

	_, err = NewClient("", "", "").Send(context.Background(), "0412345678", "hi")
	assert.True(t, errors.Is(err, apperr.ErrIntegration))

	_, err = NewClient("user", "key", "").WithBaseURL(srv.URL).Send(context.Background(), "", "hi")
	assert.True(t, errors.Is(err, apperr.ErrIntegration))
}
