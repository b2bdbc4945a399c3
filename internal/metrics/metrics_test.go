// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

func TestAppMetrics_Observer(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.FrameSent("sarahsdesk", deskproto.NewMoveUp(500), 2*time.Millisecond)
	m.FrameSent("sarahsdesk", deskproto.NewMoveUp(100), time.Millisecond)
	m.RequestHandled("sarahsdesk", "move", "ok")
	m.SendFailed("sarahsdesk", fmt.Errorf("serial: %w", desk.ErrLinkClosed))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesSentTotal.WithLabelValues("sarahsdesk", "MOVE_UP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sarahsdesk", "move", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendErrorsTotal.WithLabelValues("sarahsdesk")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LinkUp.WithLabelValues("sarahsdesk")))

	m.SetLinkUp("sarahsdesk", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkUp.WithLabelValues("sarahsdesk")))
}

func TestAppMetrics_WiredIntoDispatcher(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	c, err := desk.NewController("sarahsdesk", desk.NewRecorder(), desk.WithObserver(m))
	require.NoError(t, err)
	d := desk.NewDispatcher(map[string]*desk.Controller{"sarahsdesk": c}, desk.WithObserver(m))

	req := map[string]interface{}{"height": map[string]interface{}{"percent": 50}}
	_, err = d.Handle(context.Background(), "sarahsdesk", req)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sarahsdesk", "percent", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSentTotal.WithLabelValues("sarahsdesk", "SET_HEIGHT")))
}

func TestHandler(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)
	m.RequestHandled("sarahsdesk", "const", "ok")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `webcontrol_requests_total{command="const",desk="sarahsdesk",result="ok"} 1`)
}
