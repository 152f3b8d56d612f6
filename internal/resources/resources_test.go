package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hydropipe/pkg/apperror"
	"hydropipe/pkg/httpclient"
)

func TestRequire_FailsFastOnUnconfiguredResource(t *testing.T) {
	r := &Resources{}

	err := r.Require([]string{NameWarehouse})

	assert.Error(t, err)
	assert.Equal(t, apperror.CodeConfigError, apperror.Code(err))
}

func TestRequire_FailsOnUnknownName(t *testing.T) {
	r := &Resources{}

	err := r.Require([]string{"not_a_resource"})

	assert.Error(t, err)
	assert.Equal(t, apperror.CodeConfigError, apperror.Code(err))
}

func TestRequire_PassesWhenConfigured(t *testing.T) {
	r := &Resources{HTTP: httpclient.New(httpclient.DefaultConfig(), "test")}

	err := r.Require([]string{NameHTTP})

	assert.NoError(t, err)
}
