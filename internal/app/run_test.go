package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// runWithTimeout はテストがDBの有無でブロックしないよう、キャンセル付きでRunContextを実行する。
func runWithTimeout(t *testing.T, args []string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var buf bytes.Buffer
	return RunContext(ctx, &buf, args)
}

// TestRun_ServeCommand_FailsWithoutDatabase はserveコマンドがDB接続を試み、失敗を返すことを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	err := runWithTimeout(t, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail when the database is unreachable")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error should mention the database: %v", err)
	}
}

func TestRun_WorkerCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	if err := runWithTimeout(t, []string{"worker"}); err == nil {
		t.Fatal("Run(worker) should fail when the database is unreachable")
	}
}

func TestRun_DefaultCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	if err := runWithTimeout(t, []string{}); err == nil {
		t.Fatal("Run([]) should fail when the database is unreachable")
	}
}

func TestRun_ProvisionCommand_ValidatesFlagsBeforeConnecting(t *testing.T) {
	setTestEnv(t)

	err := runWithTimeout(t, []string{"provision", "-no-such-flag"})
	if err == nil {
		t.Fatal("Run(provision) with an unknown flag should fail")
	}
	if strings.Contains(err.Error(), "database") {
		t.Errorf("flag errors should be reported before connecting: %v", err)
	}
}

func TestRun_MigrateDown_RejectsInvalidSteps(t *testing.T) {
	setTestEnv(t)

	err := runWithTimeout(t, []string{"migrate", "down", "zero"})
	if err == nil || !strings.Contains(err.Error(), "invalid rollback steps") {
		t.Fatalf("err = %v, want invalid rollback steps", err)
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("BASE_URL", "")

	err := runWithTimeout(t, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
	if !strings.Contains(err.Error(), "initialization failed") {
		t.Errorf("err = %v, want initialization failure", err)
	}
}
