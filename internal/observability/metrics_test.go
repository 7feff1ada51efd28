package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSocialAction(t *testing.T) {
	okBefore := testutil.ToFloat64(SocialActions.WithLabelValues("follow", "ok"))
	errBefore := testutil.ToFloat64(SocialActions.WithLabelValues("follow", "error"))

	RecordSocialAction("follow", nil)
	RecordSocialAction("follow", errors.New("conflict"))
	RecordSocialAction("follow", nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(SocialActions.WithLabelValues("follow", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(SocialActions.WithLabelValues("follow", "error")))
}

func TestRecordCacheLookup(t *testing.T) {
	before := testutil.ToFloat64(CacheLookups.WithLabelValues("leaderboard", "hit"))
	RecordCacheLookup("leaderboard", true)
	assert.Equal(t, before+1, testutil.ToFloat64(CacheLookups.WithLabelValues("leaderboard", "hit")))
}
