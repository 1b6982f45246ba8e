package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/hitoshi/bookclub/internal/backend"
	"github.com/hitoshi/bookclub/internal/config"
	"github.com/hitoshi/bookclub/internal/model"
	"github.com/hitoshi/bookclub/internal/user"
)

// provisionPasswordEnv はパスワードを引数に含めずに渡すための環境変数。
const provisionPasswordEnv = "PROVISION_PASSWORD"

// parseProvisionArgs はprovisionサブコマンドの引数を解析する。
// -password が省略された場合は環境変数PROVISION_PASSWORDを使う。
func parseProvisionArgs(w io.Writer, args []string) (user.ProvisionInput, error) {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	fs.SetOutput(w)

	var in user.ProvisionInput
	var role string
	fs.StringVar(&in.Email, "email", "", "user email address (required)")
	fs.StringVar(&in.Password, "password", "", "user password (or set "+provisionPasswordEnv+")")
	fs.StringVar(&in.ClubID, "club-id", "", "existing club id")
	fs.StringVar(&in.ClubName, "club-name", "", "name of a new club (used when -club-id is empty)")
	fs.StringVar(&in.MeetingRoom, "meeting-room", "", "meeting room link of a new club")
	fs.StringVar(&role, "role", string(model.RoleMember), "membership role: admin or member")

	if err := fs.Parse(args); err != nil {
		return user.ProvisionInput{}, err
	}
	if fs.NArg() > 0 {
		return user.ProvisionInput{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if in.Password == "" {
		in.Password = os.Getenv(provisionPasswordEnv)
	}
	in.Role = model.Role(role)
	return in, nil
}

// runProvision はクラブ、ユーザー、所属を登録し、結果をwに出力する。
func runProvision(ctx context.Context, cfg *config.Config, w io.Writer, args []string) error {
	in, err := parseProvisionArgs(w, args)
	if err != nil {
		return err
	}

	client, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	svc := user.NewService(client.Clubs, client.Users, client.Members, nil)
	result, err := svc.Provision(ctx, in)
	if err != nil {
		return fmt.Errorf("provision failed: %w", err)
	}

	fmt.Fprintf(w, "club_id=%s user_id=%s role=%s\n", result.Club.ID, result.User.ID, result.Member.Role)
	return nil
}
