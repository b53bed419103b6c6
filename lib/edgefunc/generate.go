/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package edgefunc generates and deploys the Lambda@Edge functions that
// route viewer requests to the nearest origin bucket.
package edgefunc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/gravitational/trace"
)

// GenerateRequest contains the inputs of the routing function generator.
type GenerateRequest struct {
	// Preset is the region mapping preset name.
	Preset string
	// DefaultOriginDomain is the S3 domain serving regions the preset
	// does not map.
	DefaultOriginDomain string
	// AdditionalOriginDomains are the S3 domains filling the preset's
	// numbered slots, in order. Slot origin1 gets the first domain,
	// origin2 the second, and so on. Unfilled slots fall back to the
	// default domain.
	AdditionalOriginDomains []string
}

// CheckAndSetDefaults checks if the required fields are present.
func (req *GenerateRequest) CheckAndSetDefaults() error {
	if req.Preset == "" {
		return trace.BadParameter("preset is required")
	}
	if req.DefaultOriginDomain == "" {
		return trace.BadParameter("default origin domain is required")
	}
	return nil
}

var routingFunctionTemplate = template.Must(template.New("routing function").Parse(
	`// Lambda@Edge function for multi-origin routing
// Preset: {{.Preset}} ({{.DisplayName}})

{{.Declarations}}

const regionsMapping = {{.Mapping}};

exports.handler = async (event) => {
    const request = event.Records[0].cf.request;
    const region = process.env.AWS_REGION;

    try {
        const domainName = regionsMapping[region] || defaultBucket;
        setRequestOrigin(request, domainName);
    } catch (error) {
        console.log('Error: ', error);
        setRequestOrigin(request, defaultBucket);
    }

    return request;
};

const setRequestOrigin = (request, domainName) => {
    request.origin.s3.authMethod = 'origin-access-identity';
    request.origin.s3.domainName = domainName;
    request.origin.s3.region = domainName.split('.')[2];
    request.headers['host'] = [{ key: 'host', value: domainName }];
};
`))

// Generate returns the JavaScript source of the edge routing function for
// the given preset and origin domains. The output depends only on the
// request, so identical requests generate identical code.
func Generate(req GenerateRequest) (string, error) {
	if err := req.CheckAndSetDefaults(); err != nil {
		return "", trace.Wrap(err)
	}
	preset, err := GetPreset(req.Preset)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if total := len(req.AdditionalOriginDomains) + 1; total < preset.RequiredOrigins {
		return "", trace.BadParameter("preset %v requires %d origins, got %d", preset.Name, preset.RequiredOrigins, total)
	}

	mapping, err := json.MarshalIndent(resolveRoutingTable(preset, req.DefaultOriginDomain, req.AdditionalOriginDomains), "", "  ")
	if err != nil {
		return "", trace.Wrap(err)
	}

	declarations := []string{
		fmt.Sprintf("const defaultBucket = '%s';", req.DefaultOriginDomain),
	}
	for i, domain := range req.AdditionalOriginDomains {
		declarations = append(declarations, fmt.Sprintf("const origin%dBucket = '%s';", i+1, domain))
	}

	var sb strings.Builder
	err = routingFunctionTemplate.Execute(&sb, struct {
		Preset       string
		DisplayName  string
		Declarations string
		Mapping      string
	}{
		Preset:       preset.Name,
		DisplayName:  preset.DisplayName,
		Declarations: strings.Join(declarations, "\n"),
		Mapping:      string(mapping),
	})
	if err != nil {
		return "", trace.Wrap(err)
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}

// resolveRoutingTable fills each region's preset slot with the matching
// origin domain.
func resolveRoutingTable(preset Preset, defaultDomain string, additional []string) map[string]string {
	table := make(map[string]string, len(preset.RegionMapping))
	for region, slot := range preset.RegionMapping {
		table[region] = slotDomain(slot, defaultDomain, additional)
	}
	return table
}

// slotDomain resolves the originN slot to the Nth additional domain,
// falling back to the default domain for slots the request left unfilled.
func slotDomain(slot, defaultDomain string, additional []string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(slot, "origin"))
	if err != nil || n < 1 || n > len(additional) {
		return defaultDomain
	}
	return additional[n-1]
}

// OriginDomain returns the regional S3 REST endpoint of a bucket, the
// form the routing function parses the region back out of.
func OriginDomain(bucket, region string) string {
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region)
}
