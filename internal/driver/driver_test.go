package driver

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/damianoneill/net/v2/cli"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	responses map[string]string
	sent      []string
	closed    bool
}

func newFakeSession(responses map[string]string) *fakeSession {
	if responses == nil {
		responses = map[string]string{}
	}
	return &fakeSession{responses: responses}
}

func (f *fakeSession) Send(value string, _ ...cli.SendOption) (string, error) {
	f.sent = append(f.sent, value)
	return f.responses[value], nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) sentCommand(cmd string) bool {
	for _, s := range f.sent {
		if s == cmd {
			return true
		}
	}
	return false
}

type fakeUploader struct {
	files  map[string][]byte
	err    error
	closed bool
}

func (u *fakeUploader) Upload(_ context.Context, name string, content []byte) error {
	if u.err != nil {
		return u.err
	}
	if u.files == nil {
		u.files = map[string][]byte{}
	}
	u.files[name] = content
	return nil
}

func (u *fakeUploader) Close() error {
	u.closed = true
	return nil
}

const candidate = "hostname core1\n"

func iosSession(diff string) *fakeSession {
	return newFakeSession(map[string]string{
		"show running-config": "Building configuration...\n\nCurrent configuration : 120 bytes\n!\nhostname old\n",
		"verify /md5 flash:candidate_config.txt":                                           "verify /md5 (flash:candidate_config.txt) = " + md5Hex([]byte(candidate)) + "\n",
		"show archive config differences system:running-config flash:candidate_config.txt": diff,
		"configure replace flash:candidate_config.txt force revert trigger error":          "Total number of passes: 1\nRollback Done\n",
	})
}

func TestRunStripsEchoAndDetectsErrors(t *testing.T) {
	sess := newFakeSession(map[string]string{
		"show clock": "show clock\n*10:00:00 UTC Mon Oct 19 2026",
		"shw clock":  "shw clock\n% Invalid input detected at '^' marker.",
	})
	out, err := run(context.Background(), sess, "show clock")
	require.NoError(t, err)
	require.Equal(t, "*10:00:00 UTC Mon Oct 19 2026", out)

	_, err = run(context.Background(), sess, "shw clock")
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "shw clock", cerr.Command)
}

func TestShowChecksFirstLineOnly(t *testing.T) {
	sess := newFakeSession(map[string]string{
		"show file flash:notes.txt": "show file flash:notes.txt\nbanner motd ^C\n% Error: authorised access only\n^C\n",
		"show file flash:missing":   "show file flash:missing\n% Error opening flash:missing (No such file or directory)\n",
	})
	out, err := show(context.Background(), sess, "show file flash:notes.txt")
	require.NoError(t, err)
	require.Contains(t, out, "% Error: authorised access only")

	_, err = show(context.Background(), sess, "show file flash:missing")
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
}

func TestIOSGetConfigKeepsMarkerText(t *testing.T) {
	running := "Building configuration...\n\nCurrent configuration : 180 bytes\n!\ninterface Gi0/1\n description ERROR: do not shut, uplink\n!\n"
	d := NewIOS(newFakeSession(map[string]string{"show running-config": running}), &fakeUploader{}, "flash:")
	cfg, err := d.GetConfig(context.Background(), RetrieveRunning)
	require.NoError(t, err)
	require.Contains(t, cfg.Running, " description ERROR: do not shut, uplink")
}

func TestNXOSCheckpointKeepsMarkerText(t *testing.T) {
	sess := newFakeSession(map[string]string{
		"show file bootflash:temp_cp_file_from_netcfg": "!Command: Checkpoint cmd vdc 1\nbanner motd #% Error reporting is logged#\nhostname leaf1\n",
	})
	out, err := NewNXOS(sess, &fakeUploader{}, "bootflash:").GetCheckpointFile(context.Background())
	require.NoError(t, err)
	require.Contains(t, out, "% Error reporting is logged")
}

func TestPromptPatternMatchesWholeLine(t *testing.T) {
	re := regexp.MustCompile(promptPattern)
	for _, p := range []string{"core1#", "leaf-2(config)#", "sw1>", "edge.lab:1(config-if)# "} {
		require.True(t, re.MatchString(p), p)
	}
	for _, p := range []string{"banner text only#", "!   uplink to core#", "Proceed? [confirm]"} {
		require.False(t, re.MatchString(p), p)
	}
}

func TestIOSGetConfigRunning(t *testing.T) {
	d := NewIOS(iosSession(""), &fakeUploader{}, "flash:")
	cfg, err := d.GetConfig(context.Background(), RetrieveRunning)
	require.NoError(t, err)
	require.Equal(t, "!\nhostname old\n", cfg.Running)
	require.Empty(t, cfg.Startup)

	_, err = d.GetConfig(context.Background(), "bogus")
	require.Error(t, err)
}

func TestIOSLoadReplaceCandidate(t *testing.T) {
	up := &fakeUploader{}
	d := NewIOS(iosSession(""), up, "flash:")
	require.NoError(t, d.LoadReplaceCandidate(context.Background(), candidate))
	require.Equal(t, []byte(candidate), up.files[iosCandidateFile])
	require.True(t, d.loaded)
}

func TestIOSChecksumMismatch(t *testing.T) {
	sess := newFakeSession(map[string]string{
		"verify /md5 flash:candidate_config.txt": "verify /md5 (flash:candidate_config.txt) = 00000000000000000000000000000000",
	})
	d := NewIOS(sess, &fakeUploader{}, "flash:")
	err := d.LoadReplaceCandidate(context.Background(), candidate)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
	require.True(t, sess.sentCommand("delete /force flash:candidate_config.txt"))
	require.False(t, d.loaded)
}

func TestIOSUploadFailure(t *testing.T) {
	d := NewIOS(iosSession(""), &fakeUploader{err: errors.New("sftp subsystem disabled")}, "flash:")
	err := d.LoadReplaceCandidate(context.Background(), candidate)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sftp subsystem disabled")
}

func TestCompareBeforeLoad(t *testing.T) {
	d := NewIOS(iosSession(""), &fakeUploader{}, "flash:")
	_, err := d.CompareConfig(context.Background())
	require.True(t, errors.Is(err, ErrNoCandidate))
	require.True(t, errors.Is(d.CommitConfig(context.Background()), ErrNoCandidate))
}

func TestConfigureDryRunDiscards(t *testing.T) {
	sess := iosSession("!Contextual Config Diffs:\n-hostname old\n+hostname core1\n")
	d := NewIOS(sess, &fakeUploader{}, "flash:")

	res, err := Configure(context.Background(), d, candidate, true)
	require.NoError(t, err)
	require.Equal(t, "-hostname old\n+hostname core1\n", res.Diff)
	require.True(t, res.Changed)
	require.False(t, res.Committed)
	require.False(t, sess.sentCommand("configure replace flash:candidate_config.txt force revert trigger error"))
	require.True(t, sess.sentCommand("delete /force flash:candidate_config.txt"))
}

func TestConfigureCommits(t *testing.T) {
	sess := iosSession("!Contextual Config Diffs:\n+hostname core1\n")
	d := NewIOS(sess, &fakeUploader{}, "flash:")

	res, err := Configure(context.Background(), d, candidate, false)
	require.NoError(t, err)
	require.True(t, res.Committed)
	require.True(t, sess.sentCommand("configure replace flash:candidate_config.txt force revert trigger error"))
	require.True(t, sess.sentCommand("write memory"))
}

func TestConfigureNoChangesSkipsCommit(t *testing.T) {
	sess := iosSession("!No changes were found\n")
	d := NewIOS(sess, &fakeUploader{}, "flash:")

	res, err := Configure(context.Background(), d, candidate, false)
	require.NoError(t, err)
	require.Empty(t, res.Diff)
	require.False(t, res.Changed)
	require.False(t, res.Committed)
	require.False(t, sess.sentCommand("write memory"))
}

func nxosSession(rollbackOutput string) *fakeSession {
	return newFakeSession(map[string]string{
		"show running-config":                                 "!Command: show running-config\n!Time: Mon Oct 19 10:00:00 2026\n\nversion 9.3(8)\nhostname leaf1\n",
		"show file bootflash:temp_cp_file_from_netcfg":        "!Command: Checkpoint cmd vdc 1\nversion 9.3(8)\nhostname leaf1\n",
		"show file bootflash:candidate_config.txt md5sum":     md5Hex([]byte(candidate)) + "\n",
		"show diff rollback-patch file bootflash:rollback_config.txt file bootflash:candidate_config.txt": "Collecting Running-Config\n#Generating Rollback Patch\n!!\nno hostname leaf1\nhostname core1\n",
		"rollback running-config file bootflash:candidate_config.txt": rollbackOutput,
	})
}

func TestNXOSCheckpointFile(t *testing.T) {
	sess := nxosSession("")
	d := NewNXOS(sess, &fakeUploader{}, "bootflash:")

	out, err := d.GetCheckpointFile(context.Background())
	require.NoError(t, err)
	require.Contains(t, out, "hostname leaf1")
	require.Equal(t, []string{
		"checkpoint file bootflash:temp_cp_file_from_netcfg",
		"show file bootflash:temp_cp_file_from_netcfg",
		"delete bootflash:temp_cp_file_from_netcfg no-prompt",
	}, sess.sent)
	require.False(t, sess.sentCommand("show running-config"))
}

func TestNXOSGetConfigStripsHeader(t *testing.T) {
	d := NewNXOS(nxosSession(""), &fakeUploader{}, "bootflash:")
	cfg, err := d.GetConfig(context.Background(), RetrieveRunning)
	require.NoError(t, err)
	require.Equal(t, "version 9.3(8)\nhostname leaf1\n", cfg.Running)
}

func TestNXOSConfigureCommit(t *testing.T) {
	sess := nxosSession("Collecting Running-Config\nRollback completed successfully.\n")
	d := NewNXOS(sess, &fakeUploader{}, "bootflash:")

	res, err := Configure(context.Background(), d, candidate, false)
	require.NoError(t, err)
	require.Equal(t, "!!\nno hostname leaf1\nhostname core1\n", res.Diff)
	require.True(t, res.Committed)
	require.True(t, sess.sentCommand("checkpoint file bootflash:rollback_config.txt"))
	require.True(t, sess.sentCommand("copy running-config startup-config"))
}

func TestNXOSRollbackFailure(t *testing.T) {
	sess := nxosSession("Collecting Running-Config\nRollback failed.\n")
	d := NewNXOS(sess, &fakeUploader{}, "bootflash:")

	_, err := Configure(context.Background(), d, candidate, false)
	var cerr *CommandError
	require.True(t, errors.As(err, &cerr))
	require.False(t, sess.sentCommand("copy running-config startup-config"))
}

func TestNormalizeNXOSDiffEmpty(t *testing.T) {
	require.Empty(t, normalizeNXOSDiff("Collecting Running-Config\n#Generating Rollback Patch\nRollback Patch is Empty\n"))
}

func TestCloseClosesSessionAndUploader(t *testing.T) {
	sess := newFakeSession(nil)
	up := &fakeUploader{}
	require.NoError(t, NewNXOS(sess, up, "bootflash:").Close())
	require.True(t, sess.closed)
	require.True(t, up.closed)
}

type stubDriver struct{ Driver }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("fake", func(context.Context, Target) (Driver, error) { return stubDriver{}, nil })

	d, err := r.Open(context.Background(), Target{Name: "r1", Platform: "fake"})
	require.NoError(t, err)
	require.NotNil(t, d)

	_, err = r.Open(context.Background(), Target{Name: "r1", Platform: "junos"})
	require.True(t, errors.Is(err, ErrUnsupportedPlatform))

	require.Equal(t, []string{"ios", "nxos"}, DefaultRegistry().Platforms())
}
