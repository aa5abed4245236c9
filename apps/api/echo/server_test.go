package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/trezcool/feeledger/apps/api/echo"
	"github.com/trezcool/feeledger/tests"
)

func TestServer_home(t *testing.T) {
	app := setup(t)

	rec := app.run(httpTest{method: http.MethodGet, path: "/"})
	if rec.Code != http.StatusOK {
		t.Errorf("home code = %v; want %v", rec.Code, http.StatusOK)
	}
	if want := "Welcome to Masomo Fees API!"; rec.Body.String() != want {
		t.Errorf("home body = %q; want %q", rec.Body.String(), want)
	}
}

func TestServer_auth(t *testing.T) {
	app := setup(t)

	expired := echoapi.GetUserClaims(app.Conf, testutil.Admin)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := echoapi.GenerateToken(app.Conf, expired)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, echoapi.GetUserClaims(app.Conf, testutil.Admin))
	forgedToken, err := forged.SignedString([]byte("not-the-secret"))
	if err != nil {
		t.Fatalf("SignedString() failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "Missing Token",
			method:   http.MethodGet,
			path:     "/v1/fee-templates",
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errMissingToken),
		},
		{
			name:     "Expired Token",
			method:   http.MethodGet,
			path:     "/v1/fee-templates",
			token:    expiredToken,
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errInvalidToken),
		},
		{
			name:     "Forged Token",
			method:   http.MethodGet,
			path:     "/v1/fee-templates",
			token:    forgedToken,
			wantCode: http.StatusUnauthorized,
			wantData: marshalObj(t, errInvalidToken),
		},
		{
			name:     "Valid Token",
			method:   http.MethodGet,
			path:     "/v1/fee-templates",
			token:    app.teacherToken,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "Admin Route As Bursar",
			method:   http.MethodPost,
			path:     "/v1/fee-templates",
			body:     []byte(`{"name": "Lab Fee", "category": "ACTIVITY"}`),
			token:    app.bursarToken,
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, errForbidden),
		},
		{
			name:     "Collector Route As Teacher",
			method:   http.MethodPost,
			path:     "/v1/payments",
			body:     []byte(`{}`),
			token:    app.teacherToken,
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, errForbidden),
		},
	}
	runTests(t, app, tests)
}

func TestClaims_User(t *testing.T) {
	app := setup(t)

	claims := echoapi.GetUserClaims(app.Conf, testutil.Bursar)
	usr := claims.User()
	if usr.ID != testutil.Bursar.ID || usr.Username != testutil.Bursar.Username || !usr.IsBursar() || usr.IsAdmin() {
		t.Errorf("Claims.User() = %+v; want %+v", usr, testutil.Bursar)
	}
	if claims.IsAdmin {
		t.Errorf("GetUserClaims(bursar).IsAdmin = true")
	}
	if !echoapi.GetUserClaims(app.Conf, testutil.Admin).IsAdmin {
		t.Errorf("GetUserClaims(admin).IsAdmin = false")
	}
}
