package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []AssetStatus{StatusPendingUpload, StatusValidating, StatusRejected, StatusPromoting,
		StatusTranscoding, StatusReady, StatusTranscodeFailed}

	allowed := map[[2]AssetStatus]bool{
		{StatusPendingUpload, StatusValidating}:    true,
		{StatusValidating, StatusRejected}:         true,
		{StatusValidating, StatusPromoting}:        true,
		{StatusPromoting, StatusTranscoding}:       true,
		{StatusPromoting, StatusTranscodeFailed}:   true,
		{StatusTranscoding, StatusReady}:           true,
		{StatusTranscoding, StatusTranscodeFailed}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]AssetStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	// 被拒絕之後永遠不會再前進
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusReady.IsTerminal())
	assert.True(t, StatusTranscodeFailed.IsTerminal())
	assert.False(t, StatusPromoting.IsTerminal())
	assert.False(t, AssetStatus("ready").Valid())
}

func TestKeys(t *testing.T) {
	id := "5f0c3c8e-8f1e-4b7a-9d7b-2a8d3c1e0f11"
	assert.Equal(t, "uploads/"+id+"/source", QuarantineKey(id))
	assert.Equal(t, "sources/"+id+"/source", DurableKey(id))
	assert.Equal(t, "renditions/"+id+"/", RenditionPrefix(id))
	assert.Equal(t, "renditions/"+id+"/index.m3u8", RenditionManifestKey(id))

	got, ok := AssetIDFromQuarantineKey(QuarantineKey(id))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	for _, bad := range []string{"sources/x/source", "uploads//source", "uploads/x/movie.mp4", "uploads/x"} {
		_, ok := AssetIDFromQuarantineKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestLocator(t *testing.T) {
	l := Locator{Bucket: "durable", Key: "sources/a/source"}
	parsed, err := ParseLocator(l.String())
	require.NoError(t, err)
	assert.Equal(t, l, parsed)

	empty, err := ParseLocator("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseLocator("no-key/")
	assert.Error(t, err)
}

func TestParseStorageEvent(t *testing.T) {
	body := []byte(`{"Records":[
		{"eventName":"s3:ObjectCreated:Put","s3":{"bucket":{"name":"quarantine"},
		 "object":{"key":"uploads%2Fabc%2Fsource","size":1048576,"contentType":"video/mp4"}}},
		{"eventName":"s3:ObjectRemoved:Delete","s3":{"bucket":{"name":"quarantine"},"object":{"key":"uploads/old/source"}}},
		{"eventName":"ObjectCreated:Put","s3":{"bucket":{"name":"quarantine"},"object":{"key":"a+b","size":1}}}
	]}`)

	got, err := ParseStorageEvent(body)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, StorageNotification{
		Bucket: "quarantine", Key: "uploads/abc/source", Size: 1048576,
		ContentType: "video/mp4", EventName: "s3:ObjectCreated:Put",
	}, got[0])
	assert.Equal(t, "a b", got[1].Key)

	_, err = ParseStorageEvent([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	test, err := ParseStorageEvent([]byte(`{"Service":"Amazon S3","Event":"s3:TestEvent"}`))
	require.NoError(t, err)
	assert.Empty(t, test)
}

func TestParseTranscodeCompletion(t *testing.T) {
	c, err := ParseTranscodeCompletion([]byte(`{"jobId":"j","assetId":"a","outcome":"Success"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, c.Outcome)

	_, err = ParseTranscodeCompletion([]byte(`{"jobId":"j","assetId":"a","outcome":"Maybe"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = ParseTranscodeCompletion([]byte(`{"assetId":"a","outcome":"Failure"}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestCountryList(t *testing.T) {
	v, err := CountryList{"US", " France ", ""}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["France","US"]`, v)

	var c CountryList
	require.NoError(t, c.Scan(`["Korea, Republic of","FR"]`))
	assert.Equal(t, CountryList{"Korea, Republic of", "FR"}, c)

	require.NoError(t, c.Scan([]byte("FR, DE")))
	assert.Equal(t, CountryList{"FR", "DE"}, c)

	require.NoError(t, c.Scan(nil))
	assert.Nil(t, c)

	assert.Error(t, c.Scan(42))
}
