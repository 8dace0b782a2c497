package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_ReverseOrder(t *testing.T) {
	log, _ := test.NewNullLogger()
	sm := NewShutdownManager(log, nil, 0)

	var order []string
	sm.Register("registry", func(context.Context) error { order = append(order, "registry"); return nil })
	sm.Register("cron", func(context.Context) error { order = append(order, "cron"); return nil })

	assert.NoError(t, sm.Shutdown(context.Background()))
	assert.Equal(t, []string{"cron", "registry"}, order)
}

func TestShutdownManager_ContinuesAfterFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	sm := NewShutdownManager(log, nil, 0)

	ran := false
	sm.Register("first", func(context.Context) error { ran = true; return nil })
	sm.Register("second", func(context.Context) error { return errors.New("flush failed") })

	err := sm.Shutdown(context.Background())
	assert.Error(t, err)
	assert.True(t, ran)
	assert.Equal(t, "second", hook.Entries[0].Data["step"])
}

func TestInitOTel(t *testing.T) {
	log, _ := test.NewNullLogger()

	providers, err := InitOTel(context.Background(), OTelConfig{}, log)
	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, providers.Shutdown(context.Background()))

	_, err = InitOTel(context.Background(), OTelConfig{Enabled: true}, log)
	assert.Error(t, err)
}
