/*
Copyright 2026 The Gantry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package remote

import (
	"bytes"
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/pkg/gantry/hosts"
)

const sshDialTimeout = 15 * time.Second

type sshRunner struct {
	client *ssh.Client
}

func newSSHRunner(host *hosts.Host) (Runner, error) {
	var auth []ssh.AuthMethod
	if host.KeyPEM != "" {
		signer, err := ssh.ParsePrivateKey([]byte(host.KeyPEM))
		if err != nil {
			return nil, gErrors.Wrapf(gErrors.Validation, err, "parsing ssh key of host %q", host.Name)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if host.Password != "" {
		auth = append(auth, ssh.Password(host.Password))
	}
	if len(auth) == 0 {
		return nil, gErrors.Newf(gErrors.Validation, "ssh host %q has neither a key nor a password", host.Name)
	}

	addr := host.Address
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User: host.User,
		Auth: auth,
		// Fleet hosts are registered by the operator, not discovered.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         sshDialTimeout,
	})
	if err != nil {
		return nil, gErrors.Wrapf(gErrors.RemoteExecFailed, err, "dialing ssh host %q", host.Name)
	}
	return &sshRunner{client: client}, nil
}

func (r *sshRunner) Run(ctx context.Context, command string) (string, int, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", -1, gErrors.Wrap(gErrors.RemoteExecFailed, err, "opening ssh session")
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return output.String(), -1, ctx.Err()
	case err := <-done:
		if err == nil {
			return output.String(), 0, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return output.String(), exitErr.ExitStatus(), nil
		}
		return output.String(), -1, gErrors.Wrap(gErrors.RemoteExecFailed, err, "running remote command")
	}
}

// WriteFile streams data to the remote path over a cat session. The
// parent directory is created first.
func (r *sshRunner) WriteFile(ctx context.Context, remotePath string, data []byte) error {
	dir := path.Dir(remotePath)
	if output, exit, err := r.Run(ctx, "mkdir -p "+shellquote.Join(dir)); err != nil {
		return err
	} else if exit != 0 {
		return gErrors.Newf(gErrors.RemoteExecFailed, "creating remote directory %q: %s", dir, strings.TrimSpace(output))
	}

	session, err := r.client.NewSession()
	if err != nil {
		return gErrors.Wrap(gErrors.RemoteExecFailed, err, "opening ssh session")
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(data)
	if err := session.Run("cat > " + shellquote.Join(remotePath)); err != nil {
		return gErrors.Wrapf(gErrors.RemoteExecFailed, err, "writing remote file %q", remotePath)
	}
	return nil
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}
