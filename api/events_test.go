package api_test

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towbid/models"
)

func TestAPI_EventStream(t *testing.T) {
	env := newTestEnv(t)
	seller, _ := env.signUp(t, "seller5", models.RoleSeller)
	_, bidderToken := env.signUp(t, "bidder5", models.RoleBidder)
	a := env.seedActiveAuction(t, seller.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.ts.URL+"/api/events?auction="+a.ID.String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	received := make(chan string, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				received <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()

	// 出價會透過事件頻道廣播成 bid_update
	bidResp := env.request(t, http.MethodPost, "/api/auctions/"+a.ID.String()+"/bids",
		bidderToken, gin.H{"amount": 5100})
	require.Equal(t, http.StatusCreated, bidResp.StatusCode)
	bidResp.Body.Close()

	select {
	case event := <-received:
		assert.Equal(t, "bid_update", event)
	case <-time.After(3 * time.Second):
		t.Fatal("no event received from stream")
	}
	cancel()
}
