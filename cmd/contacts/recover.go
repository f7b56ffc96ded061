package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-contacts/internal/tui"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

func newRecoverCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover <link>",
		Short: "Set a new password from a recovery link",
		Long: `Open the password update screen with the session granted by a recovery link.

<link> is either the link from the recovery email or the address it
redirects to (the one carrying access_token and refresh_token).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := parseRecoveryLink(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, tui.RouteUpdatePassword, link.open)
		},
	}
}

// recoveryLink is a parsed recovery link. Exactly one of token and session is set.
type recoveryLink struct {
	token   string
	session *schema.Session
}

func parseRecoveryLink(raw string) (recoveryLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return recoveryLink{}, fmt.Errorf("invalid recovery link: %w", err)
	}
	params := u.Query()
	// Some redirects carry the tokens in the fragment.
	if frag, err := url.ParseQuery(u.Fragment); err == nil && frag.Get("access_token") != "" {
		params = frag
	}
	if t := params.Get("type"); t != "" && t != "recovery" {
		return recoveryLink{}, fmt.Errorf("not a recovery link (type %q)", t)
	}

	if access := params.Get("access_token"); access != "" {
		s := &schema.Session{
			AccessToken:  access,
			RefreshToken: params.Get("refresh_token"),
			Recovery:     true,
		}
		if v := params.Get("expires_at"); v != "" {
			sec, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return recoveryLink{}, fmt.Errorf("invalid expires_at %q: %w", v, err)
			}
			s.ExpiresAt = time.Unix(sec, 0).UTC()
		}
		return recoveryLink{session: s}, nil
	}
	if token := params.Get("token"); token != "" {
		return recoveryLink{token: token}, nil
	}
	return recoveryLink{}, errors.New("recovery link carries no token")
}

// open makes the link's recovery session current on a.
func (l recoveryLink) open(ctx context.Context, a *sdk.AuthClient) error {
	var err error
	if l.session != nil {
		_, err = a.SetSession(ctx, *l.session)
	} else {
		_, err = a.VerifyRecovery(ctx, l.token)
	}
	if err != nil {
		return fmt.Errorf("recovery link rejected: %w", err)
	}
	return nil
}
