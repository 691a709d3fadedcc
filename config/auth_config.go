// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

// authConfig carries the AAI/OIDC parameters the access service (component
// K) needs to validate bearer tokens and issue sessions. Mirrors spec.md
// §6's BASE_URL/REDIRECT_URL/AAI_CLIENT_*/OIDC_*/AUTH_METHOD/JWT_SECRET
// environment variables.
type authConfig struct {
	// the externally-visible base URL of this service
	BaseURL string `yaml:"base_url"`
	// the URL the identity provider redirects back to after login
	RedirectURL string `yaml:"redirect_url"`
	// OAuth2 client ID registered with the AAI provider
	ClientId string `yaml:"client_id"`
	// OAuth2 client secret. DO NOT STORE THIS IN A CONFIG FILE! Use an
	// environment variable instead
	ClientSecret string `yaml:"client_secret"`
	// base URL of the OIDC provider (userinfo/token endpoints hang off this)
	OIDCURL string `yaml:"oidc_url"`
	// space-separated OIDC scopes requested at login
	OIDCScope string `yaml:"oidc_scope"`
	// which authentication method is active: "oidc" or "apikey"
	AuthMethod string `yaml:"auth_method"`
	// secret used to derive the fernet key protecting issued API keys.
	// DO NOT STORE THIS IN A CONFIG FILE! Use an environment variable instead
	JWTSecret string `yaml:"jwt_secret"`
}
