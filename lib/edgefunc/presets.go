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

package edgefunc

import (
	"maps"
	"slices"

	"github.com/gravitational/trace"
)

// Preset is a named mapping from AWS edge regions to numbered origin
// slots. Slot names are origin1, origin2 and so on. Regions absent from
// the mapping fall back to the default origin at request time.
type Preset struct {
	// Name is the preset identifier used in requests.
	Name string
	// DisplayName is the human readable preset name.
	DisplayName string
	// RequiredOrigins is the total number of origins the preset routes
	// across, the default origin included.
	RequiredOrigins int
	// RegionMapping maps AWS region names to origin slots.
	RegionMapping map[string]string
}

// Preset names.
const (
	// PresetAsiaUS routes Asia-Pacific traffic to one origin and the
	// Americas plus Europe to another.
	PresetAsiaUS = "asia-us"
	// PresetGlobalThree routes Asia-Pacific, the Americas and Europe to
	// three separate origins.
	PresetGlobalThree = "global-three"
)

// presets holds the supported region mapping presets.
var presets = map[string]Preset{
	PresetAsiaUS: {
		Name:            PresetAsiaUS,
		DisplayName:     "Asia-Pacific + Americas",
		RequiredOrigins: 2,
		RegionMapping: map[string]string{
			"ap-east-1":      "origin1",
			"ap-northeast-1": "origin1",
			"ap-northeast-2": "origin1",
			"ap-northeast-3": "origin1",
			"ap-south-1":     "origin1",
			"ap-south-2":     "origin1",
			"ap-southeast-1": "origin1",
			"ap-southeast-2": "origin1",
			"ap-southeast-3": "origin1",
			"ap-southeast-4": "origin1",
			"ap-southeast-5": "origin1",
			"ap-southeast-7": "origin1",
			"me-central-1":   "origin1",

			"us-east-1":    "origin2",
			"us-east-2":    "origin2",
			"us-west-1":    "origin2",
			"us-west-2":    "origin2",
			"ca-central-1": "origin2",
			"ca-west-1":    "origin2",
			"eu-central-1": "origin2",
			"eu-central-2": "origin2",
			"eu-north-1":   "origin2",
			"eu-south-1":   "origin2",
			"eu-south-2":   "origin2",
			"eu-west-1":    "origin2",
			"eu-west-2":    "origin2",
			"eu-west-3":    "origin2",
			"af-south-1":   "origin2",
			"il-central-1": "origin2",
			"me-south-1":   "origin2",
			"mx-central-1": "origin2",
			"sa-east-1":    "origin2",
		},
	},
	PresetGlobalThree: {
		Name:            PresetGlobalThree,
		DisplayName:     "Global 3-Region",
		RequiredOrigins: 3,
		RegionMapping: map[string]string{
			"ap-east-1":      "origin1",
			"ap-northeast-1": "origin1",
			"ap-northeast-2": "origin1",
			"ap-northeast-3": "origin1",
			"ap-south-1":     "origin1",
			"ap-south-2":     "origin1",
			"ap-southeast-1": "origin1",
			"ap-southeast-2": "origin1",
			"ap-southeast-3": "origin1",
			"ap-southeast-4": "origin1",
			"ap-southeast-5": "origin1",
			"ap-southeast-7": "origin1",
			"me-central-1":   "origin1",

			"us-east-1":    "origin2",
			"us-east-2":    "origin2",
			"us-west-1":    "origin2",
			"us-west-2":    "origin2",
			"ca-central-1": "origin2",
			"ca-west-1":    "origin2",
			"mx-central-1": "origin2",
			"sa-east-1":    "origin2",

			"eu-central-1": "origin3",
			"eu-central-2": "origin3",
			"eu-north-1":   "origin3",
			"eu-south-1":   "origin3",
			"eu-south-2":   "origin3",
			"eu-west-1":    "origin3",
			"eu-west-2":    "origin3",
			"eu-west-3":    "origin3",
			"af-south-1":   "origin3",
			"il-central-1": "origin3",
			"me-south-1":   "origin3",
		},
	},
}

// GetPreset returns the preset with the given name.
func GetPreset(name string) (Preset, error) {
	preset, ok := presets[name]
	if !ok {
		return Preset{}, trace.BadParameter("invalid preset %q, supported presets: %v", name, PresetNames())
	}
	return preset, nil
}

// PresetNames returns the supported preset names in sorted order.
func PresetNames() []string {
	return slices.Sorted(maps.Keys(presets))
}
