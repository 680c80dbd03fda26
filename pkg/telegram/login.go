package telegram

import (
	"context"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-enricher/internal/model"
)

// CodePrompt asks the operator for the login code Telegram sent.
type CodePrompt func(ctx context.Context) (string, error)

// Login authorizes cred's session interactively and returns the account.
// An already authorized session is reused.
func (c *Connector) Login(ctx context.Context, cred model.Credential, phone, password string, prompt CodePrompt) (*tg.User, error) {
	client, err := c.newClient(cred)
	if err != nil {
		return nil, err
	}

	codeAuth := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		return prompt(ctx)
	})
	flow := auth.NewFlow(auth.Constant(phone, password, codeAuth), auth.SendCodeOptions{})

	var self *tg.User
	err = client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return eris.Wrap(err, "telegram: auth flow")
		}
		u, err := client.Self(ctx)
		if err != nil {
			return eris.Wrap(err, "telegram: get self")
		}
		self = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("telegram: session authorized",
		zap.String("session", cred.Name),
		zap.String("username", self.Username),
	)
	return self, nil
}
