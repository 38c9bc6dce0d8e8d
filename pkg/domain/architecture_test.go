package domain_test

import (
	"testing"

	"limscore/testutil"
)

// The domain package is the dependency floor of the repository. Everything above
// it (service, drivers, reporting) imports it, so it must not reach back into
// internal packages or pull in third-party modules.
func TestDomainImportsStayStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/domain must not import internal packages")
	testutil.AssertNoDirectImports(t, ".", testutil.ThirdPartyImportForbidden,
		"pkg/domain must not import third-party modules")
}
