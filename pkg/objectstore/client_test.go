package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"hydropipe/pkg/apperror"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadBucketOutput), args.Error(1)
}

func (m *mockAPI) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.CreateBucketOutput), args.Error(1)
}

func (m *mockAPI) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *mockAPI) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *mockAPI) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func TestEnsureBucket_AlreadyExists(t *testing.T) {
	api := new(mockAPI)
	api.On("HeadBucket", mock.Anything, mock.Anything).Return(&s3.HeadBucketOutput{}, nil)

	client := NewWithAPI(api)
	err := client.EnsureBucket(context.Background(), "bronze-hubeau")

	assert.NoError(t, err)
	api.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
}

func TestEnsureBucket_Creates(t *testing.T) {
	api := new(mockAPI)
	api.On("HeadBucket", mock.Anything, mock.Anything).Return(nil, assert.AnError)
	api.On("CreateBucket", mock.Anything, mock.Anything).Return(&s3.CreateBucketOutput{}, nil)

	client := NewWithAPI(api)
	err := client.EnsureBucket(context.Background(), "bronze-hubeau")

	assert.NoError(t, err)
	api.AssertExpectations(t)
}

func TestPutObject(t *testing.T) {
	api := new(mockAPI)
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "bronze" && *in.Key == "hubeau/2026-07-30/piezo.json"
	})).Return(&s3.PutObjectOutput{}, nil)

	client := NewWithAPI(api)
	err := client.PutObject(context.Background(), "bronze", "hubeau/2026-07-30/piezo.json", []byte(`{}`), "application/json")

	assert.NoError(t, err)
	api.AssertExpectations(t)
}

func TestGetObject(t *testing.T) {
	api := new(mockAPI)
	api.On("GetObject", mock.Anything, mock.Anything).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader([]byte(`{"records":[]}`))),
	}, nil)

	client := NewWithAPI(api)
	data, err := client.GetObject(context.Background(), "bronze", "hubeau/2026-07-30/piezo.json")

	assert.NoError(t, err)
	assert.Equal(t, `{"records":[]}`, string(data))
}

func TestGetObject_NotFound(t *testing.T) {
	api := new(mockAPI)
	api.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	client := NewWithAPI(api)
	_, err := client.GetObject(context.Background(), "bronze", "missing")

	assert.Error(t, err)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}

func TestHeadObject_Missing(t *testing.T) {
	api := new(mockAPI)
	api.On("HeadObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{})

	client := NewWithAPI(api)
	exists, err := client.HeadObject(context.Background(), "bronze", "missing")

	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestHeadObject_Exists(t *testing.T) {
	api := new(mockAPI)
	api.On("HeadObject", mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil)

	client := NewWithAPI(api)
	exists, err := client.HeadObject(context.Background(), "bronze", "present")

	assert.NoError(t, err)
	assert.True(t, exists)
}
