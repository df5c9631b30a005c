package captcha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resolvedPageHTML = `<html><head><title>Engineer Jobs | Indeed</title></head>
<body><main>search results with salary info</main><footer></footer></body></html>`

const interstitialHTML = `<html><head><title>Just a moment...</title></head>
<body>Checking your browser before accessing</body></html>`

func TestDetectChallenge(t *testing.T) {
	t.Run("recaptcha widget", func(t *testing.T) {
		html := `<html><body><div class="g-recaptcha" data-sitekey="6LcSomeRecaptchaKey123"></div></body></html>`

		detected, siteKey, err := DetectChallenge(html)
		require.NoError(t, err)
		assert.True(t, detected)
		assert.Equal(t, "6LcSomeRecaptchaKey123", siteKey)
	})

	t.Run("turnstile widget", func(t *testing.T) {
		html := `<html><body><div class="cf-turnstile" data-sitekey="0x4AAAAAAATurnstileKey"></div></body></html>`

		detected, siteKey, err := DetectChallenge(html)
		require.NoError(t, err)
		assert.True(t, detected)
		assert.Equal(t, SiteKeyTurnstilePrefix+"0x4AAAAAAATurnstileKey", siteKey)
	})

	t.Run("cloudflare interstitial without widget key", func(t *testing.T) {
		detected, siteKey, err := DetectChallenge(interstitialHTML)
		require.NoError(t, err)
		assert.True(t, detected)
		assert.Equal(t, SiteKeyCloudflare, siteKey)
	})

	t.Run("ordinary results page", func(t *testing.T) {
		detected, siteKey, err := DetectChallenge(resolvedPageHTML)
		require.NoError(t, err)
		assert.False(t, detected)
		assert.Empty(t, siteKey)
	})
}

func TestIsChallengeResolved(t *testing.T) {
	assert.True(t, IsChallengeResolved(resolvedPageHTML))
	assert.False(t, IsChallengeResolved(interstitialHTML))
	assert.False(t, IsChallengeResolved("<html><body>ok</body></html>"), "too little content to call it resolved")
	assert.False(t, IsChallengeResolved(resolvedPageHTML+"<div>cf-challenge</div>"))
}
