package koji

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// GSSAPI authenticates with the Kerberos credentials cache, the way
// `koji --authtype=kerberos` does.
type GSSAPI struct {
	Krb5Conf string // defaults to $KRB5_CONFIG or /etc/krb5.conf
	CCache   string // defaults to $KRB5CCNAME or /tmp/krb5cc_<uid>
}

// LoginClient wraps base in a SPNEGO client backed by the credentials cache.
func (g GSSAPI) LoginClient(p Profile, base *http.Client) (Doer, error) {
	cfg, err := krbconfig.Load(g.krb5Conf())
	if err != nil {
		return nil, fmt.Errorf("loading krb5 config: %w", err)
	}
	cc, err := credentials.LoadCCache(g.ccache())
	if err != nil {
		return nil, fmt.Errorf("loading credentials cache: %w", err)
	}
	cl, err := client.NewFromCCache(cc, cfg, client.DisablePAFXFAST(true))
	if err != nil {
		return nil, fmt.Errorf("creating kerberos client: %w", err)
	}
	return spnego.NewClient(cl, base, servicePrincipal(p)), nil
}

// servicePrincipal returns the hub's HTTP service principal when krb_rdns
// is set. An empty name lets SPNEGO derive it from the request host.
func servicePrincipal(p Profile) string {
	if !p.KrbRDNS {
		return ""
	}
	u, err := url.Parse(p.Server)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	addrs, err := net.LookupHost(u.Hostname())
	if err != nil || len(addrs) == 0 {
		return ""
	}
	names, err := net.LookupAddr(addrs[0])
	if err != nil || len(names) == 0 {
		return ""
	}
	return "HTTP/" + strings.TrimSuffix(names[0], ".")
}

func (g GSSAPI) krb5Conf() string {
	if g.Krb5Conf != "" {
		return g.Krb5Conf
	}
	if env := os.Getenv("KRB5_CONFIG"); env != "" {
		return env
	}
	return "/etc/krb5.conf"
}

func (g GSSAPI) ccache() string {
	if g.CCache != "" {
		return strings.TrimPrefix(g.CCache, "FILE:")
	}
	if env := os.Getenv("KRB5CCNAME"); env != "" {
		return strings.TrimPrefix(env, "FILE:")
	}
	return fmt.Sprintf("/tmp/krb5cc_%d", os.Getuid())
}

// NoAuth performs the login call without credentials. It is meant for
// hubs fronted by client certificates or for tests.
type NoAuth struct{}

func (NoAuth) LoginClient(_ Profile, base *http.Client) (Doer, error) {
	return base, nil
}
