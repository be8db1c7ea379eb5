package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/go-pkgz/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/apkbuild/app/notify/mocks"
)

func TestService_EmptyDestinations(t *testing.T) {
	svc := NewService(Params{}, SendersParams{})
	require.Nil(t, svc)
}

func TestService_Destinations(t *testing.T) {
	svc := NewService(Params{}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.Len(t, svc.destinations, 1)

	svc = NewService(Params{}, SendersParams{WebhookURLs: []string{"https://example.com/hook"}})
	require.NotNil(t, svc)
	assert.Len(t, svc.destinations, 1)

	svc = NewService(Params{}, SendersParams{ToEmails: []string{"test@example.com"},
		WebhookURLs: []string{"https://example.com/hook"}})
	require.NotNil(t, svc)
	assert.Len(t, svc.destinations, 2)
}

func TestMakeErrorHTMLDefault(t *testing.T) {
	svc := NewService(Params{HostName: "builder1"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeErrorHTML("My App", "https://example.com/", "gradle <failed>")
	require.NoError(t, err)
	assert.Contains(t, res, `<li>App: <span class="bold">My App</span></li>`)
	assert.Contains(t, res, `<li>URL: <span class="bold">https://example.com/</span></li>`)
	assert.Contains(t, res, "gradle &lt;failed&gt;")
	assert.Contains(t, res, `APK build failed on <span class="bold">builder1</span>`)
}

func TestMakeErrorHTMLCustom(t *testing.T) {
	svc := NewService(Params{ErrorTemplate: "testfiles/err.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeErrorHTML("My App", "https://example.com/", "some log")
	require.NoError(t, err)
	assert.Contains(t, res, "Build failed: My App")
	assert.Contains(t, res, "URL: https://example.com/")
	assert.Contains(t, res, "some log")

	svc = NewService(Params{ErrorTemplate: "testfiles/err-bad.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err = svc.MakeErrorHTML("My App", "https://example.com/", "some log")
	require.NoError(t, err)
	assert.Contains(t, res, `<li>App: <span class="bold">My App</span></li>`, "fallback to default")

	svc = NewService(Params{ErrorTemplate: "testfiles/not-found.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	res, err = svc.MakeErrorHTML("My App", "https://example.com/", "some log")
	require.NoError(t, err)
	assert.Contains(t, res, "APK build failed")
}

func TestMakeCompletionHTMLDefault(t *testing.T) {
	svc := NewService(Params{}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeCompletionHTML("My App", "https://example.com/", "com.twa.myapp")
	require.NoError(t, err)
	assert.Contains(t, res, `<li>App: <span class="bold">My App</span></li>`)
	assert.Contains(t, res, `<li>Package: <span class="bold">com.twa.myapp</span></li>`)
	assert.Contains(t, res, "APK build completed")
}

func TestMakeCompletionHTMLCustom(t *testing.T) {
	svc := NewService(Params{CompletionTemplate: "testfiles/completed.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeCompletionHTML("My App", "https://example.com/", "com.twa.myapp")
	require.NoError(t, err)
	assert.Contains(t, res, "Build done: My App")
	assert.Contains(t, res, "Package: com.twa.myapp")

	svc = NewService(Params{CompletionTemplate: "testfiles/completed-bad.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	res, err = svc.MakeCompletionHTML("My App", "https://example.com/", "com.twa.myapp")
	require.NoError(t, err)
	assert.Contains(t, res, `<li>Package: <span class="bold">com.twa.myapp</span></li>`)
}

func TestService_IsOnCompletion(t *testing.T) {
	svc := NewService(Params{EnabledCompletion: true}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.True(t, svc.IsOnCompletion())

	svc = NewService(Params{EnabledCompletion: false}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.False(t, svc.IsOnCompletion())
}

func TestService_IsOnError(t *testing.T) {
	svc := NewService(Params{EnabledError: true}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.True(t, svc.IsOnError())

	svc = NewService(Params{EnabledError: false}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.False(t, svc.IsOnError())
}

func TestService_SendEmail(t *testing.T) {
	tests := []struct {
		name           string
		subj           string
		text           string
		destination    string
		mockSendErr    error
		expectedErrMsg string
	}{
		{
			name:        "successful send",
			subj:        "Test Subject",
			text:        "Test Text",
			destination: "mailto:to@example.com,to2@example.com?from=from%40example.com&subject=Test+Subject",
		},
		{
			name:           "send error",
			subj:           "Problem Subject",
			text:           "Problem Text",
			destination:    "mailto:to@example.com,to2@example.com?from=from%40example.com&subject=Problem+Subject",
			mockSendErr:    errors.New("mock error"),
			expectedErrMsg: "mock error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailtoNotifier := &mocks.NotifierMock{
				SendFunc: func(_ context.Context, dest string, text string) error {
					assert.Equal(t, tt.text, text)
					assert.Equal(t, tt.destination, dest)
					return tt.mockSendErr
				},
				SchemaFunc: func() string { return "mailto" },
				StringFunc: func() string { return "email" },
			}

			s := Service{
				destinations: []notify.Notifier{mailtoNotifier},
				fromEmail:    "from@example.com",
				toEmail:      []string{"to@example.com", "to2@example.com"},
			}

			err := s.Send(context.Background(), tt.subj, tt.text)
			assert.Len(t, mailtoNotifier.SendCalls(), 1)
			if tt.expectedErrMsg == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErrMsg)
			}
		})
	}
}

func TestService_SendWebhooks(t *testing.T) {
	webhook := &mocks.NotifierMock{
		SendFunc: func(_ context.Context, dest string, _ string) error {
			if dest == "https://example.com/bad" {
				return errors.New("bad hook")
			}
			return nil
		},
		SchemaFunc: func() string { return "http" },
		StringFunc: func() string { return "webhook" },
	}
	s := Service{destinations: []notify.Notifier{webhook},
		webhooks: []string{"https://example.com/good", "https://example.com/bad"}}

	err := s.Send(context.Background(), "subj", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook https://example.com/bad")
	assert.Contains(t, err.Error(), "bad hook")
	require.Len(t, webhook.SendCalls(), 2)
	assert.Equal(t, "https://example.com/good", webhook.SendCalls()[0].Destination)
	assert.Equal(t, "subj\n\ntext", webhook.SendCalls()[0].Text)
}

func TestHostName(t *testing.T) {
	t.Setenv("MHOST", "build-host")
	assert.Equal(t, "build-host", HostName())
	t.Setenv("MHOST", "")
	assert.NotEmpty(t, HostName())
}
