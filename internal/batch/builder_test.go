package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatweyL/Potok/internal/store/memstore"
)

func TestBuild_Constant(t *testing.T) {
	st := memstore.New()
	p, err := Build(Config{Kind: KindConstant, ConstantSize: 7}, st.Runs())
	require.NoError(t, err)
	assert.IsType(t, &ConstantProvider{}, p)
}

func TestBuild_AIMD(t *testing.T) {
	st := memstore.New()
	p, err := Build(Config{
		Kind:          KindAIMD,
		AIMDDelta:     5,
		AIMDBeta:      0.5,
		AIMDBase:      10,
		AIMDMin:       1,
		AIMDMax:       100,
		MetricsPeriod: time.Minute,
		QueueCapacity: 100,
	}, st.Runs())
	require.NoError(t, err)
	assert.IsType(t, &AIMDProvider{}, p)
}

func TestBuild_PID(t *testing.T) {
	st := memstore.New()
	p, err := Build(Config{
		Kind:                 KindPID,
		PIDTargetUtilization: 0.5,
		PIDTickInterval:      5 * time.Second,
		PIDKp:                0.1,
		PIDKi:                0.2,
		PIDKd:                0.0,
		MetricsPeriod:        time.Minute,
		QueueCapacity:        100,
	}, st.Runs())
	require.NoError(t, err)
	assert.IsType(t, &PIDProvider{}, p)
}

func TestBuild_UnknownKindFails(t *testing.T) {
	st := memstore.New()
	_, err := Build(Config{Kind: "bogus"}, st.Runs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}
