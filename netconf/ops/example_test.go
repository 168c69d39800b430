package ops

import (
	"context"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/damianoneill/netdeploy/testserver"
)

func exampleSSHConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            testserver.TestUserName,
		Auth:            []ssh.AuthMethod{ssh.Password(testserver.TestPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint: gosec
	}
}

func ExampleOpSession_GetSubtree() {
	ts := testserver.NewTestNetconfServer(nil)
	defer ts.Close()

	s, err := NewSession(context.Background(), exampleSSHConfig(), ts.Address())
	if err != nil {
		fmt.Println("session:", err)
		return
	}
	defer s.Close()

	var reply string
	if err = s.GetSubtree(context.Background(), "<top><sub/></top>", &reply); err != nil {
		fmt.Println("get:", err)
		return
	}
	fmt.Println(reply)

	// Output: <filter type="subtree"><top><sub/></top></filter>
}

func ExampleOpSession_Commit() {
	ts := testserver.NewTestNetconfServer(nil).
		WithRequestHandler(testserver.OkRequestHandler).
		WithRequestHandler(testserver.FailingRequestHandler)
	defer ts.Close()

	s, err := NewSession(context.Background(), exampleSSHConfig(), ts.Address())
	if err != nil {
		fmt.Println("session:", err)
		return
	}
	defer s.Close()

	fmt.Println(s.EditConfig(context.Background(), CandidateCfg, Cfg(`<top/>`), DefaultOperation(ReplaceOp)))
	fmt.Println(s.Commit(context.Background()))

	// Output: <nil>
	// netconf rpc [error] operation-failed 'oops'
}
