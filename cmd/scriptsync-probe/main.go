// Command scriptsync-probe is a headless smoke-test client: it dials a
// scriptsyncd instance over TLS, logs in, creates and opens a project,
// creates and joins a document, sends one patch, and prints every reply it
// receives. It exists to exercise the wire protocol end to end without a
// GUI editor attached.
package main

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fountainhead/scriptsync/internal/certstore"
	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/patch"
	"github.com/fountainhead/scriptsync/internal/wire"
	"github.com/fountainhead/scriptsync/pkg/client"
)

func main() {
	addr := flag.String("addr", "localhost:8684", "scriptsyncd address")
	username := flag.String("username", "", "login username")
	password := flag.String("password", "", "login password")
	trustDir := flag.String("trust-dir", "trusted-certs", "trust-on-first-use certificate directory")
	projectName := flag.String("project", "probe project", "name of the project to create")
	docName := flag.String("doc", "probe.fountain", "name of the document to create")
	flag.Parse()

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "probe: -username and -password are required")
		os.Exit(1)
	}

	trust, err := certstore.NewTrustStore(*trustDir)
	if err != nil {
		fatal("trust store", err)
	}

	conn, err := dialTrusted(*addr, trust)
	if err != nil {
		fatal("dial", err)
	}
	defer conn.Close()

	catalog := endpoint.Default()
	replies := make(chan replyEnvelope, 64)
	socket := wire.New(conn, catalog, nil)
	for _, id := range []endpoint.ID{
		endpoint.LOGIN_RESULT, endpoint.CREATED_PROJECT, endpoint.OPENED_PROJECT,
		endpoint.CREATED_DOC, endpoint.SYNC_DOC, endpoint.JOINED_DOC, endpoint.LEFT_DOC,
		endpoint.SCRIPT_PATCH_ACK, endpoint.SCRIPT_PATCHED,
		endpoint.ERROR_FULFILLING_SERVER_REQUEST, endpoint.ERROR_FULFILLING_PROJECT_REQUEST,
		endpoint.PONG,
	} {
		id := id
		socket.Handle(id, func(payload any) error {
			replies <- replyEnvelope{id: id, payload: payload}
			return nil
		})
	}
	socket.Handle(endpoint.ARE_U_ALIVE, func(any) error {
		return socket.Send(endpoint.I_AM_ALIVE, nil)
	})

	go func() {
		if err := socket.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "probe: serve: %v\n", err)
		}
		close(replies)
	}()

	if err := socket.Send(endpoint.LOGIN, endpoint.LoginRequest{Username: *username, Password: *password}); err != nil {
		fatal("send login", err)
	}
	loginResult, ok := await(replies, endpoint.LOGIN_RESULT)
	if !ok {
		fatal("login", errors.New("connection closed before LOGIN_RESULT"))
	}
	result := loginResult.(endpoint.LoginResult)
	if result.ErrorCode != 0 {
		fatal("login", fmt.Errorf("server rejected credentials (code %d)", result.ErrorCode))
	}
	fmt.Printf("logged in as %s (%d existing project(s))\n", result.User.VisibleName, len(result.Projects))

	if err := socket.Send(endpoint.CREATE_PROJECT, endpoint.NamePayload{Name: *projectName}); err != nil {
		fatal("send create_project", err)
	}
	createdProject, ok := await(replies, endpoint.CREATED_PROJECT)
	if !ok {
		fatal("create_project", errors.New("connection closed"))
	}
	project := createdProject.(endpoint.IDAndName)
	fmt.Printf("created project %s (%s)\n", project.Name, project.ID)

	if err := socket.Send(endpoint.OPEN_PROJECT, endpoint.IDPayload{ID: project.ID}); err != nil {
		fatal("send open_project", err)
	}
	if _, ok := await(replies, endpoint.OPENED_PROJECT); !ok {
		fatal("open_project", errors.New("connection closed"))
	}
	fmt.Println("project opened")

	if err := socket.Send(endpoint.CREATE_DOC, endpoint.IDAndName{ID: project.ID, Name: *docName}); err != nil {
		fatal("send create_doc", err)
	}
	createdDoc, ok := await(replies, endpoint.CREATED_DOC)
	if !ok {
		fatal("create_doc", errors.New("connection closed"))
	}
	doc := createdDoc.(endpoint.IDAndName)
	fmt.Printf("created document %s (%s)\n", doc.Name, doc.ID)

	if err := socket.Send(endpoint.JOIN_DOC, endpoint.IDPayload{ID: doc.ID}); err != nil {
		fatal("send join_doc", err)
	}
	syncDoc, ok := await(replies, endpoint.SYNC_DOC)
	if !ok {
		fatal("join_doc", errors.New("connection closed"))
	}
	snapshot := syncDoc.(endpoint.SyncDoc)
	fmt.Printf("joined document at timestamp %d with %d block(s)\n", snapshot.DocumentTimestamp, len(snapshot.Blocks))

	c := client.New(socket, snapshot)
	p := patch.New()
	p.Add(0, &patch.AddDataChange{BlockID: 0, Start: 0, Items: nil})
	if err := c.SendChange(p); err != nil {
		fatal("send_change", err)
	}
	if _, ok := await(replies, endpoint.SCRIPT_PATCH_ACK); !ok {
		fatal("script_patch_ack", errors.New("connection closed"))
	}
	fmt.Println("patch round-tripped and acknowledged")

	if err := socket.Send(endpoint.LEAVE_DOC, endpoint.IDPayload{ID: doc.ID}); err != nil {
		fatal("send leave_doc", err)
	}
	await(replies, endpoint.LEFT_DOC)
	socket.Close()
}

type replyEnvelope struct {
	id      endpoint.ID
	payload any
}

// await drains replies until one matching want arrives, forwarding
// unrelated notifications (e.g. JOINED_DOC from another session) to stdout.
func await(replies <-chan replyEnvelope, want endpoint.ID) (any, bool) {
	for env := range replies {
		if env.id == want {
			return env.payload, true
		}
		if env.id == endpoint.ERROR_FULFILLING_SERVER_REQUEST || env.id == endpoint.ERROR_FULFILLING_PROJECT_REQUEST {
			fmt.Fprintf(os.Stderr, "probe: server error: %+v\n", env.payload)
			continue
		}
		fmt.Printf("(notification %d: %+v)\n", env.id, env.payload)
	}
	return nil, false
}

// dialTrusted connects over TLS, verifying the server certificate via
// trust-on-first-use: the first connection to a host prompts on stdout and
// persists the certificate; subsequent connections require an exact match.
func dialTrusted(addr string, trust *certstore.TrustStore) (*tls.Conn, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: true}
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		conn.Close()
		return nil, errors.New("probe: server presented no certificate")
	}
	cert := state.PeerCertificates[0]

	decide := func(hostname string, cert *x509.Certificate) bool {
		fmt.Printf("unknown certificate for %s (sha256 %x) - trusting on first use\n", hostname, sha256.Sum256(cert.Raw))
		return true
	}
	if err := trust.Verify(addr, cert, decide); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func fatal(step string, err error) {
	fmt.Fprintf(os.Stderr, "probe: %s: %v\n", step, err)
	os.Exit(1)
}
